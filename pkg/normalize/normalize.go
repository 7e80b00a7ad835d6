package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lootscout/pkg/models"
)

// Source describes the retailer a record came from.
type Source struct {
	// Name is the value written to Product.Source, e.g. "DKOldies".
	Name string
	// BaseURL is the origin relative links are resolved against.
	BaseURL string
	// Attribution is the description used when a listing has none.
	Attribution string
}

// productNamespace scopes product ids so they never collide with other
// UUIDv5 users of the URL namespace.
var productNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://lootscout.app/products"))

// plainAmount admits digits with an optional fraction. Exponents are refused
// so scraped text cannot force a huge expansion.
var plainAmount = regexp.MustCompile(`^\d+(\.\d+)?$`)

var priceReplacer = strings.NewReplacer("$", "", "USD", "", "US", "", ",", "", " ", "", "\u00a0", "")

// Normalize turns one raw record into a canonical product. The record is
// taken by value and left untouched.
func Normalize(rec models.RawFieldRecord, src Source, cond models.Condition, platform *string) (models.Product, error) {
	title := CleanText(rec.Title)
	if title == "" {
		return models.Product{}, models.ErrMissingTitle
	}

	listingURL, err := Absolute(src.BaseURL, rec.URL)
	if err != nil || listingURL == "" {
		return models.Product{}, fmt.Errorf("%w: %q", models.ErrMissingURL, rec.URL)
	}

	image, err := Absolute(src.BaseURL, rec.ImageURL)
	if err != nil {
		image = ""
	}

	description := CleanText(rec.Description)
	if description == "" {
		description = src.Attribution
	}

	if cond == "" {
		cond = models.ConditionUsed
	}

	var plat *string
	if platform != nil {
		p := *platform
		plat = &p
	}

	return models.Product{
		ID:          ProductID(src.Name, listingURL),
		Title:       title,
		Description: description,
		Price:       FormatPrice(rec.PriceText),
		Source:      src.Name,
		Image:       image,
		Condition:   cond,
		URL:         listingURL,
		Platform:    plat,
	}, nil
}

// ProductID is a UUIDv5 over (source, url), so the same listing keeps its id
// across fetches and processes.
func ProductID(source, listingURL string) string {
	return uuid.NewSHA1(productNamespace, []byte(source+"\x00"+listingURL)).String()
}

// FormatPrice renders a parseable amount as "$12.34". Text that does not
// parse (ranges, "Call for price") passes through, and empty text becomes
// models.PriceNotAvailable.
func FormatPrice(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.PriceNotAvailable
	}

	plain := priceReplacer.Replace(text)
	if !plainAmount.MatchString(plain) {
		return text
	}
	amount, err := decimal.NewFromString(plain)
	if err != nil {
		return text
	}
	return "$" + amount.StringFixed(2)
}

// Absolute resolves ref against base. An empty ref yields "".
func Absolute(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref, nil
	}

	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if r.IsAbs() {
		return r.String(), nil
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if !b.IsAbs() {
		return "", fmt.Errorf("base url %q is not absolute", base)
	}
	return b.ResolveReference(r).String(), nil
}

// CleanText trims and collapses internal whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
