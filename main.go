package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"

	"lootscout/pkg/api"
	"lootscout/pkg/bootstrap"
	"lootscout/pkg/config"
	"lootscout/pkg/logger"
	"lootscout/pkg/models"
	"lootscout/pkg/scrapers"
)

const defaultMaxJobs = 3

var (
	searchSemaphore = make(chan struct{}, defaultMaxJobs)
	pipeline        *bootstrap.App
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml (defaults are used when missing)")
	portFlag := flag.Int("port", 0, "override server port")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		slog.Error("load config failed", "err", err)
		os.Exit(1)
	}
	if *portFlag != 0 {
		cfg.Server.Port = *portFlag
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)
	defer logger.Flush()

	pipeline, err = bootstrap.New(cfg, log)
	if err != nil {
		log.Error("build pipeline failed", "err", err)
		os.Exit(1)
	}
	defer pipeline.Close()

	if cfg.Server.MaxConcurrentJobs > 0 {
		searchSemaphore = make(chan struct{}, cfg.Server.MaxConcurrentJobs)
	}

	log.Info("pipeline ready",
		"sources", strings.Join(pipeline.Aggregator.Sources(), ","),
		"cache", cfg.Cache.Backend,
		"cache_ttl", cfg.Cache.TTL(),
	)

	port := strconv.Itoa(cfg.Server.Port)
	ip := GetOutboundIP()
	if ip != nil {
		fmt.Printf("Local Network URL: http://%s:%s\n", ip.String(), port)
	} else {
		fmt.Println("Could not determine local IP address.")
	}
	fmt.Printf("Access URL: http://localhost:%s/search?q=zelda\n", port)
	fmt.Printf("API Docs: http://localhost:%s/\n", port)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           newHandler(log),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	if err := serve(server, log, stop); err != nil {
		log.Error("server stopped with error", "err", err)
		pipeline.Close()
		logger.Flush()
		os.Exit(1)
	}
}

// serve runs server until a signal arrives on stop, then shuts it down
// gracefully. It returns an error only when the listener fails.
func serve(server *http.Server, log *slog.Logger, stop <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case sig := <-stop:
		log.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
			_ = server.Close()
		}
		log.Info("server stopped gracefully")
		return nil

	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newHandler(log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", rootHandler)
	mux.HandleFunc("/search", searchHandler)
	mux.HandleFunc("/sources", sourcesHandler)
	return api.Chain(log, mux)
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		api.WriteNotFound(w, "Unknown path. Available: /search, /sources", r.URL.Path)
		return
	}

	// Serve Scalar docs on root path
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir("./"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("LootScout API"),
		),
	)
	if err != nil {
		api.WriteInternalServerError(w, err, r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func GetOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		addrs, _ := net.InterfaceAddrs()
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					return ipnet.IP
				}
			}
		}
		return nil
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP
}

func searchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet, r.URL.Path)
		return
	}

	params := r.URL.Query()

	text := strings.TrimSpace(params.Get("q"))
	if text == "" {
		api.WriteBadRequest(w, "Missing required query parameter: q", r.URL.Path)
		return
	}

	maxResults := 0
	if raw := params.Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			api.WriteBadRequest(w, fmt.Sprintf("Invalid max_results: %s. Must be a positive integer.", raw), r.URL.Path)
			return
		}
		maxResults = n
	}

	var sources []string
	for _, s := range strings.Split(params.Get("sources"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}

	// Acquire semaphore to prevent system overload
	select {
	case searchSemaphore <- struct{}{}:
		defer func() { <-searchSemaphore }()
	case <-r.Context().Done():
		api.WriteServiceUnavailable(w, "Request cancelled while waiting for a free search slot", r.URL.Path)
		return
	}

	q := models.Query{Text: text, Platform: params.Get("platform"), MaxResults: maxResults}
	products, report, err := pipeline.Search(r.Context(), q, sources)
	if err != nil {
		if errors.Is(err, scrapers.ErrUnknownSource) {
			api.WriteBadRequest(w, fmt.Sprintf("%v. Available: %s", err,
				strings.ToLower(strings.Join(pipeline.Aggregator.Sources(), ", "))), r.URL.Path)
			return
		}
		api.WriteInternalServerError(w, err, r.URL.Path)
		return
	}

	w.Header().Set("X-Sources-Failed", strconv.Itoa(len(report.Failed())))
	if err := api.WriteJSON(w, http.StatusOK, products); err != nil {
		slog.Error("encode search response", "err", err)
	}
}

func sourcesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w, http.MethodGet, r.URL.Path)
		return
	}
	if err := api.WriteJSON(w, http.StatusOK, pipeline.Aggregator.Sources()); err != nil {
		slog.Error("encode sources response", "err", err)
	}
}
