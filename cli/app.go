package cli

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedback-radar/cache"
	"feedback-radar/classifier"
	"feedback-radar/config"
	"feedback-radar/hn"
	"feedback-radar/llm"
	"feedback-radar/metrics"
	"feedback-radar/narrative"
	"feedback-radar/notify"
	"feedback-radar/pipeline"
	"feedback-radar/scraper"
	"feedback-radar/storage"
	"feedback-radar/synthesis"
)

// app holds the wired dependencies shared by run and serve.
type app struct {
	cfg         *config.Config
	db          *storage.DB
	redis       *cache.Redis
	tgBot       *tgbotapi.BotAPI
	synthesizer *synthesis.Synthesizer
	notifier    *notify.Notifier
	runner      *pipeline.Runner
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	metrics.Register()

	db, err := storage.NewDB(cfg.DBPath, storage.WithClassificationMaxAge(cfg.RedisTTL()))
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	slog.Info("database initialized", "path", cfg.DBPath)

	a := &app{cfg: cfg, db: db}

	var classifyCache classifier.Cache = db
	if cfg.RedisURL != "" {
		r, err := cache.Connect(ctx, cfg.RedisURL, cache.WithTTL(cfg.RedisTTL()))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = r
		classifyCache = r
		slog.Info("redis classification cache enabled")
	}

	client, err := llm.New(cfg.LLMClientConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	slog.Info("llm client initialized", "provider", cfg.LLM.Provider, "model", client.Model())

	cls := classifier.New(client,
		classifier.WithCompany(cfg.CompanyName),
		classifier.WithBatchPolicy(classifier.BatchPolicy{Size: cfg.Classify.BatchSize, Delay: cfg.BatchDelay()}),
		classifier.WithCache(classifyCache),
	)
	a.synthesizer = synthesis.NewSynthesizer(narrative.NewWriter(client))

	if cfg.Telegram.Token != "" {
		tgBot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize telegram bot: %w", err)
		}
		a.tgBot = tgBot
		a.notifier = notify.NewNotifier(&telegramSender{bot: tgBot}, &settingsAdapter{db: db}, cfg.Telegram.ChatID)
		slog.Info("telegram bot initialized", "username", tgBot.Self.UserName)
	}

	opts := []pipeline.Option{
		pipeline.WithQueries(cfg.SearchQueries...),
		pipeline.WithMaxItems(cfg.MaxItems),
		pipeline.WithEnricher(scraper.NewScraper(scraper.WithTimeout(cfg.FetchTimeout()))),
	}
	if a.notifier != nil {
		opts = append(opts, pipeline.WithNotifier(a.notifier))
	}
	a.runner = pipeline.NewRunner(
		cfg.CompanyName,
		hn.NewClient(hn.WithTimeout(cfg.FetchTimeout())),
		cls,
		a.synthesizer,
		db,
		opts...,
	)

	return a, nil
}

// Close releases the database and cache connections.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("failed to close redis", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

// runOnce executes one pipeline run and logs its outcome.
func (a *app) runOnce(ctx context.Context) (*pipeline.Result, error) {
	res, err := a.runner.Run(ctx)
	if err != nil {
		slog.Error("pipeline run failed", "company", a.cfg.CompanyName, "error", err)
		return res, err
	}
	for _, se := range res.Errors {
		slog.Warn("pipeline stage error", "stage", se.Stage, "error", se.Err)
	}
	return res, nil
}
