// Package app baut aus der Konfiguration die vollständige Service-Landschaft
// zusammen, die sowohl der HTTP-Server als auch das Ingest-Kommando nutzen.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"covid-news/auditlog"
	"covid-news/cache"
	"covid-news/config"
	"covid-news/notify"
	"covid-news/providers/pagefeed"
	"covid-news/providers/sitelist"
	"covid-news/providers/tweetdump"
	"covid-news/search"
	"covid-news/services"
	"covid-news/storage"
	"covid-news/taxonomy"
)

// CursorFile holds the byte offset already consumed from the page feed.
const CursorFile = "offset.txt"

// App bundles every long-lived component.
type App struct {
	Config   *config.Config
	Taxonomy *taxonomy.Taxonomy
	Store    storage.Store
	Index    search.Index
	Cache    cache.Cache
	Audit    *auditlog.Log
	Sources  sitelist.Sources

	Pages    *services.PageService
	Queries  *services.QueryEngine
	Feedback *services.FeedbackService
	// Ingestor is nil when no page feed is configured.
	Ingestor *services.Ingestor

	redis *cache.Redis
}

// Open connects the store, index and cache and wires the services on top.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	tx, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Taxonomy: tx, Cache: cache.Noop{}, Index: search.Disabled{}}

	if a.Store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	logger.Info("Datenbank verbunden", zap.String("backend", cfg.StoreBackend))

	if cfg.ESURL != "" {
		es, err := search.NewElasticsearch(cfg.ESURL, cfg.ESPageIndexPrefix, cfg.ESTweetIndexPrefix)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("elasticsearch: %w", err)
		}
		a.Index = es
	} else {
		logger.Warn("ES_URL nicht gesetzt, Volltextsuche deaktiviert.")
	}

	if cfg.RedisAddr != "" {
		a.redis = cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		a.Cache = a.redis
	}

	if a.Audit, err = auditlog.New(cfg.LogDir, logger); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.SiteListPath != "" {
		if a.Sources, err = sitelist.Load(cfg.SiteListPath, tx); err != nil {
			a.Close()
			return nil, err
		}
	}

	var checker services.TitleChecker
	if cfg.VerifyTitleLanguage {
		checker = services.NewLanguageChecker()
	}
	normalizer := services.NewNormalizer(tx, checker, logger)

	a.Pages = services.NewPageService(a.Store, a.Audit, tx, a.Cache, logger)
	a.Queries = services.NewQueryEngine(a.Store, a.Index, tx, cfg.QueryWorkers, logger)

	var feedback notify.Sender = notify.Noop{}
	if len(cfg.SlackAccessTokens) > 0 {
		feedback = notify.NewSlackSenders(cfg.SlackAccessTokens, cfg.SlackChannels)
	}
	a.Feedback = services.NewFeedbackService(feedback, a.Audit, logger)

	if cfg.InputPagePath == "" {
		logger.Warn("DB_INPUT_PAGE_PATH nicht gesetzt, Ingest deaktiviert.")
		return a, nil
	}
	feed := pagefeed.New(cfg.InputPagePath, filepath.Join(cfg.LogDir, CursorFile), logger)
	a.Ingestor = services.NewIngestor(feed, normalizer, a.Pages, a.Audit, tx, logger)
	a.Ingestor.SiteURL = cfg.SiteURL
	if cfg.TweetDumpDir != "" {
		a.Ingestor.Tweets = tweetdump.New(cfg.TweetDumpDir, logger)
	}
	if cfg.DoTweet {
		if !cfg.TwitterEnabled() {
			logger.Warn("DO_TWEET gesetzt, aber Twitter-Zugangsdaten fehlen.")
		} else {
			a.Ingestor.Announcer = notify.NewTwitter(notify.TwitterCredentials{
				Token:          cfg.TwitterToken,
				TokenSecret:    cfg.TwitterTokenSecret,
				ConsumerKey:    cfg.TwitterConsumerKey,
				ConsumerSecret: cfg.TwitterConsumerSecret,
			})
		}
	}
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.StoreBackend == config.BackendMongo {
		s, err := storage.OpenMongo(ctx, storage.MongoConfig{
			URI:             cfg.MongoURI,
			Database:        cfg.MongoDB,
			PageCollection:  cfg.MongoPageCollection,
			TweetCollection: cfg.MongoTweetCollection,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := storage.OpenPostgres(cfg.DSN())
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the store and cache connections.
func (a *App) Close() error {
	var first error
	if a.Store != nil {
		first = a.Store.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
