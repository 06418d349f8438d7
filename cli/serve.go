package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"feedback-radar/api"
	"feedback-radar/notify"
	"feedback-radar/scheduler"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled analyses, the Telegram bot and the HTTP API",
	Long: `Start the long-running service: periodic pipeline runs on the configured
schedule, Telegram bot commands when a token is set, and the HTTP API.

Endpoints:
  GET  /health                  Health check
  GET  /metrics                 Prometheus metrics
  GET  /api/v1/reports/latest   Latest report
  GET  /api/v1/snapshots        Recent snapshots
  POST /api/v1/analyze          Offline analysis of classified items
  POST /api/v1/runs             Start a pipeline run`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (overrides http_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	setupLogging(os.Stdout, cfg.LogLevel)
	slog.Info("starting feedback-radar", "company", cfg.CompanyName, "version", version)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	trigger := newRunTrigger(ctx, func(ctx context.Context) {
		a.runOnce(ctx)
	})

	sched, err := scheduler.NewScheduler(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("initialize scheduler: %w", err)
	}
	schedule := cfg.Schedule
	if stored, err := a.db.GetSetting(ctx, notify.SettingSchedule); err == nil {
		schedule = stored
	}
	if err := sched.Schedule(schedule, trigger.runNow); err != nil {
		return fmt.Errorf("schedule runs: %w", err)
	}
	sched.Start()
	defer sched.Stop()
	slog.Info("runs scheduled", "schedule", schedule, "timezone", cfg.Timezone, "next", sched.Next())

	if a.tgBot != nil {
		handler := notify.NewCommandHandler(
			&telegramSender{bot: a.tgBot},
			&settingsAdapter{db: a.db},
			trigger,
			&reportLookup{db: a.db, company: cfg.CompanyName},
			&rescheduler{sched: sched, job: trigger.runNow},
		)
		go pollUpdates(ctx, a.tgBot, handler)
	}

	router := api.NewRouter(api.NewHandlers(a.db, a.synthesizer, trigger, cfg.CompanyName))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown failed", "error", err)
	}
	slog.Info("feedback-radar stopped")
	return nil
}

// pollUpdates routes Telegram messages to the command handler until ctx is done.
func pollUpdates(ctx context.Context, bot *tgbotapi.BotAPI, handler *notify.CommandHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)
	defer bot.StopReceivingUpdates()

	slog.Info("starting bot polling")
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			chatID := update.Message.Chat.ID
			slog.Info("received message", "chat_id", chatID, "text", update.Message.Text)
			if err := handler.Handle(ctx, chatID, update.Message.Text); err != nil {
				slog.Warn("command failed", "chat_id", chatID, "error", err)
			}
		}
	}
}
