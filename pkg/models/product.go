package models

import "strings"

// PriceNotAvailable is emitted when a listing carries no price text at all.
const PriceNotAvailable = "Price not available"

// DefaultMaxResults mirrors the page size the retailer search pages use.
const DefaultMaxResults = 16

type Condition string

const (
	ConditionNew      Condition = "New"
	ConditionSealed   Condition = "Sealed"
	ConditionComplete Condition = "Complete"
	ConditionLoose    Condition = "Loose"
	ConditionUsed     Condition = "Used"
)

// Product is the canonical listing returned to callers. Values are built once
// by the normalizer and never modified afterwards.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Source      string    `json:"source"`
	Image       string    `json:"image"`
	Condition   Condition `json:"condition"`
	URL         string    `json:"url"`
	Platform    *string   `json:"platform"`
}

// PlatformTag returns the platform or "" when it is undetermined.
func (p Product) PlatformTag() string {
	if p.Platform == nil {
		return ""
	}
	return *p.Platform
}

// RawFieldRecord is what an adapter pulls out of one listing node before
// classification. InStock is nil when the source exposes no stock signal.
type RawFieldRecord struct {
	Title       string
	URL         string
	PriceText   string
	ImageURL    string
	Description string
	InStock     *bool
}

// Query is one search request as the aggregator receives it.
type Query struct {
	Text       string
	Platform   string
	MaxResults int
}

// Normalized trims the query, lower-cases the platform filter and fills the
// default result cap.
func (q Query) Normalized() Query {
	q.Text = strings.TrimSpace(q.Text)
	q.Platform = strings.ToLower(strings.TrimSpace(q.Platform))
	if q.MaxResults <= 0 {
		q.MaxResults = DefaultMaxResults
	}
	return q
}

// MatchesPlatform reports whether title passes the platform filter.
// An empty filter matches everything.
func (q Query) MatchesPlatform(title string) bool {
	if q.Platform == "" {
		return true
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(q.Platform))
}
