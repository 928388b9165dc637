package main

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cda-harvester/internal/browser"
	"github.com/sells-group/cda-harvester/internal/config"
	"github.com/sells-group/cda-harvester/internal/discovery"
	"github.com/sells-group/cda-harvester/internal/extract"
	"github.com/sells-group/cda-harvester/internal/fetcher"
	"github.com/sells-group/cda-harvester/internal/ocr"
	"github.com/sells-group/cda-harvester/internal/pipeline"
	"github.com/sells-group/cda-harvester/internal/store"
	anthropicpkg "github.com/sells-group/cda-harvester/pkg/anthropic"
)

// harvestFlags are the per-invocation overrides of the harvest command.
type harvestFlags struct {
	Limit     int
	NoBrowser bool
	DryRun    bool
}

// harvestEnv holds the ledger and the pipeline built for one harvest.
type harvestEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the harvest environment.
func (he *harvestEnv) Close() {
	if he.Store != nil {
		_ = he.Store.Close()
	}
}

// initStore opens the run ledger.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initHarvest validates config, opens the ledger, and builds the pipeline.
// Callers should defer env.Close().
func initHarvest(ctx context.Context, flags harvestFlags) (*harvestEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	text, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return nil, eris.Wrap(err, "init text extractor")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key, option.WithRequestTimeout(secs(cfg.Anthropic.TimeoutSecs)))
	fields := extract.New(client, extract.Options{
		Model:       cfg.Anthropic.Model,
		MaxChars:    cfg.Extract.MaxChars,
		MaxTokens:   cfg.Extract.MaxTokens,
		Temperature: cfg.Extract.Temperature,
	})

	p := pipeline.New(pipeline.Options{
		DatasetPath:              cfg.Output.DatasetPath,
		ChangelogPath:            cfg.Output.ChangelogPath,
		MaxConcurrentExtractions: cfg.Pipeline.MaxConcurrentExtractions,
		RunTimeout:               time.Duration(cfg.Pipeline.RunTimeoutMins) * time.Minute,
		Limit:                    flags.Limit,
		DryRun:                   flags.DryRun,
	}, pipeline.Deps{
		Sessions:   sessionFactory(cfg, flags.NoBrowser),
		Discoverer: discovery.NewResolver(resolverOptions(cfg)),
		Fetchers:   fetcherFactory(cfg),
		Text:       text,
		Fields:     fields,
		Store:      st,
	})

	return &harvestEnv{Store: st, Pipeline: p}, nil
}

func resolverOptions(c *config.Config) discovery.Options {
	return discovery.Options{
		ListingURL:  c.Source.ListingURL,
		FilterLabel: c.Source.FilterLabel,
		Category:    c.Source.Category,
		RenderWait:  secs(c.Browser.RenderWaitSecs),
		FilterWait:  secs(c.Browser.FilterWaitSecs),
		NewTabWait:  secs(c.Browser.NewTabWaitSecs),
		TabSettle:   secs(c.Browser.TabSettleSecs),
	}
}

// sessionFactory launches Chrome unless the browser is disabled, in which
// case the listing is read with a plain GET.
func sessionFactory(c *config.Config, noBrowser bool) pipeline.SessionFactory {
	timeout := secs(c.Fetch.TimeoutSecs)
	if noBrowser || !c.Browser.Enabled {
		return func(context.Context) (pipeline.Session, error) {
			zap.L().Info("harvest: browser disabled, reading listing without scripts")
			return discovery.NewStaticPage(c.Fetch.UserAgent, timeout), nil
		}
	}
	return func(ctx context.Context) (pipeline.Session, error) {
		s, err := browser.Launch(ctx, browser.Options{
			Headless:  c.Browser.Headless,
			ExecPath:  c.Browser.ExecPath,
			UserAgent: c.Browser.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// fetcherFactory layers session replay (when a browser is available) over
// direct download.
func fetcherFactory(c *config.Config) pipeline.FetcherFactory {
	timeout := secs(c.Fetch.TimeoutSecs)
	return func(nav fetcher.Navigator) pipeline.Fetcher {
		var strategies []fetcher.Strategy
		if nav != nil {
			strategies = append(strategies, fetcher.NewSessionStrategy(nav, fetcher.SessionOptions{
				Settle:   time.Duration(c.Browser.NavigateSettleMS) * time.Millisecond,
				Timeout:  timeout,
				Referer:  c.Source.BaseURL,
				MinBytes: c.Fetch.MinBytes,
			}))
		}
		strategies = append(strategies, fetcher.NewDirectStrategy(fetcher.DirectOptions{
			UserAgent: c.Fetch.UserAgent,
			Referer:   c.Source.BaseURL,
			Timeout:   timeout,
			MinBytes:  c.Fetch.MinBytes,
		}))
		return fetcher.New(fetcher.Options{
			CacheDir:       c.Fetch.CacheDir,
			RequestsPerSec: c.Fetch.RequestsPerSec,
		}, strategies...)
	}
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
