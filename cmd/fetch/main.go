// Command fetch runs one aggregation for a symbol list and prints the
// resulting quotes as JSON, using the same pipeline as the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"quoteprovider/internal/aggregate"
	"quoteprovider/internal/cache"
	"quoteprovider/internal/config"
	"quoteprovider/internal/httpx"
	"quoteprovider/internal/provider"
	"quoteprovider/internal/provider/fmp"
	"quoteprovider/internal/provider/fmpadapter"
	"quoteprovider/internal/provider/yahoo"
	"quoteprovider/internal/retry"
	"quoteprovider/internal/symbols"
)

func main() {
	var symbolsCSV string
	var timeout int
	var configPath string

	flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", ""), "comma-separated tickers (empty uses the default list)")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeout > 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	var primary provider.Provider
	if cfg.FMP.Enabled && cfg.FMP.APIKey != "" {
		opts := []fmp.FMPAPIClientOption{fmp.WithHTTPClient(httpClient.HTTP)}
		if cfg.FMP.Endpoint != "" {
			opts = append(opts, fmp.WithBaseURL(cfg.FMP.Endpoint))
		}
		client, err := fmp.NewFMPAPIClient(cfg.FMP.APIKey, opts...)
		if err != nil {
			log.Fatalf("fmp client: %v", err)
		}
		primary = fmpadapter.New(fmpadapter.Config{
			Retry: retry.Policy{
				Timeout:     time.Duration(cfg.FMP.TimeoutMs) * time.Millisecond,
				MaxAttempts: cfg.FMP.MaxAttempts,
				BaseDelay:   time.Duration(cfg.FMP.RetryBaseMs) * time.Millisecond,
			},
		}, client)
	}
	var secondary provider.Provider
	if cfg.Yahoo.Enabled {
		secondary = yahoo.New(yahoo.Config{
			Hosts: cfg.Yahoo.Hosts,
			Retry: retry.Policy{
				Timeout:     time.Duration(cfg.Yahoo.TimeoutMs) * time.Millisecond,
				MaxAttempts: cfg.Yahoo.MaxAttempts,
				BaseDelay:   time.Duration(cfg.Yahoo.RetryBaseMs) * time.Millisecond,
			},
			BatchSize:  cfg.Yahoo.BatchSize,
			BatchDelay: time.Duration(cfg.Yahoo.BatchDelayMs) * time.Millisecond,
		}, httpClient)
	}

	syms, err := symbols.Parse(symbolsCSV, symbols.Options{
		Max:     cfg.Aggregator.MaxSymbols,
		Strict:  cfg.Strict(),
		Default: cfg.Aggregator.DefaultSymbols,
	})
	if err != nil {
		log.Fatalf("symbols: %v", err)
	}

	agg := &aggregate.Aggregator{
		Primary:     primary,
		Secondary:   secondary,
		Cache:       cache.Nop{}, // one-shot run, nothing to reuse
		AcceptRatio: cfg.Aggregator.AcceptRatio,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
	defer cancel()
	res, err := agg.Fetch(ctx, syms)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}

	fmt.Fprintf(os.Stderr, "status=%s source=%s quotes=%d\n", res.Status, res.Source, len(res.Quotes))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(res.Quotes); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x != 0 {
			return x
		}
	}
	return def
}
