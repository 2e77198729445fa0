package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"quoteprovider/internal/aggregate"
	"quoteprovider/internal/cache"
	"quoteprovider/internal/config"
	"quoteprovider/internal/httpx"
	"quoteprovider/internal/provider"
	fmppkg "quoteprovider/internal/provider/fmp"
	"quoteprovider/internal/provider/fmpadapter"
	"quoteprovider/internal/provider/yahoo"
	"quoteprovider/internal/retry"
	"quoteprovider/internal/symbols"
)

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	agg, parseOpts := buildAggregator(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	quotes := func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handleGetQuotes(w, r, agg, parseOpts, cfg.Server.RequestTimeoutSec)
		case http.MethodPost:
			handlePostQuotes(w, r, agg, parseOpts, cfg.Server.RequestTimeoutSec)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		}
	}
	mux.HandleFunc("/api/quotes", quotes)
	mux.HandleFunc("/quotes", quotes)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildAggregator wires providers, cache, and symbol parsing from config.
func buildAggregator(cfg config.Config) (*aggregate.Aggregator, symbols.Options) {
	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	var primary provider.Provider
	if cfg.FMP.Enabled {
		if cfg.FMP.APIKey == "" {
			// Missing key disables the batch tier; it is not an error.
			log.Println("warning: fmp.enabled=true but FMP_API_KEY not set; batch tier disabled")
		} else {
			opts := []fmppkg.FMPAPIClientOption{fmppkg.WithHTTPClient(httpClient.HTTP)}
			if cfg.FMP.Endpoint != "" {
				opts = append(opts, fmppkg.WithBaseURL(cfg.FMP.Endpoint))
			}
			client, err := fmppkg.NewFMPAPIClient(cfg.FMP.APIKey, opts...)
			if err != nil {
				log.Printf("fmp client error: %v", err)
			} else {
				primary = fmpadapter.New(fmpadapter.Config{
					Retry: retry.Policy{
						Timeout:     time.Duration(cfg.FMP.TimeoutMs) * time.Millisecond,
						MaxAttempts: cfg.FMP.MaxAttempts,
						BaseDelay:   time.Duration(cfg.FMP.RetryBaseMs) * time.Millisecond,
						NoDelay:     cfg.TestMode,
					},
				}, client)
			}
		}
	}

	var secondary provider.Provider
	if cfg.Yahoo.Enabled {
		delay := time.Duration(cfg.Yahoo.BatchDelayMs) * time.Millisecond
		if cfg.TestMode {
			delay = 0
		}
		secondary = yahoo.New(yahoo.Config{
			Hosts: cfg.Yahoo.Hosts,
			Retry: retry.Policy{
				Timeout:     time.Duration(cfg.Yahoo.TimeoutMs) * time.Millisecond,
				MaxAttempts: cfg.Yahoo.MaxAttempts,
				BaseDelay:   time.Duration(cfg.Yahoo.RetryBaseMs) * time.Millisecond,
				NoDelay:     cfg.TestMode,
			},
			BatchSize:  cfg.Yahoo.BatchSize,
			BatchDelay: delay,
		}, httpClient)
	}

	staleTTL := time.Duration(cfg.Cache.StaleTTLSec) * time.Second
	var store cache.Store
	switch {
	case cfg.TestMode:
		store = cache.Nop{}
	case cfg.Cache.RedisAddr != "":
		store = cache.NewRedis(redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}), 2*staleTTL)
	default:
		store = cache.NewMemory()
	}

	agg := &aggregate.Aggregator{
		Primary:     primary,
		Secondary:   secondary,
		Cache:       store,
		AcceptRatio: cfg.Aggregator.AcceptRatio,
		FreshTTL:    time.Duration(cfg.Cache.FreshTTLSec) * time.Second,
		StaleTTL:    staleTTL,
	}
	parseOpts := symbols.Options{
		Max:     cfg.Aggregator.MaxSymbols,
		Strict:  cfg.Strict(),
		Default: cfg.Aggregator.DefaultSymbols,
	}
	return agg, parseOpts
}

func handleGetQuotes(w http.ResponseWriter, r *http.Request, agg *aggregate.Aggregator, opts symbols.Options, timeoutSec int) {
	syms, err := symbols.Parse(r.URL.Query().Get("symbols"), opts)
	if err != nil {
		writeParseError(w, err, opts.Max)
		return
	}
	writeQuotes(w, r.Context(), agg, syms, timeoutSec)
}

type postBody struct {
	Symbols []string `json:"symbols"`
}

func handlePostQuotes(w http.ResponseWriter, r *http.Request, agg *aggregate.Aggregator, opts symbols.Options, timeoutSec int) {
	var b postBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	syms, err := symbols.Parse(strings.Join(b.Symbols, ","), opts)
	if err != nil {
		writeParseError(w, err, opts.Max)
		return
	}
	writeQuotes(w, r.Context(), agg, syms, timeoutSec)
}

func writeQuotes(w http.ResponseWriter, rctx context.Context, agg *aggregate.Aggregator, syms []string, timeoutSec int) {
	if timeoutSec <= 0 {
		timeoutSec = 15
	}
	ctx, cancel := context.WithTimeout(rctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	res, err := agg.Fetch(ctx, syms)
	if err != nil {
		if errors.Is(err, aggregate.ErrTimeout) {
			writeError(w, http.StatusGatewayTimeout, "Request timeout", "APIs did not respond in time across providers")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch stock data", err.Error())
		return
	}

	w.Header().Set("Cache-Control", "s-maxage=60, stale-while-revalidate=300")
	w.Header().Set("X-Quotes-Data-Status", res.Status)
	w.Header().Set("X-Quotes-Data-Source", res.Source)
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(res.Quotes)
}

func writeParseError(w http.ResponseWriter, err error, max int) {
	switch {
	case errors.Is(err, symbols.ErrTooMany):
		writeError(w, http.StatusBadRequest, "Too many symbols", err.Error())
	case errors.Is(err, symbols.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "Invalid symbols format", "")
	default:
		writeError(w, http.StatusBadRequest, err.Error(), "")
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Details: details})
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		// Basic CORS for browser dashboards; adjust per deployment.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses responses when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		// Best speed: payloads are small JSON arrays.
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeError(w, http.StatusInternalServerError, "internal server error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
