package cli

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedback-radar/notify"
	"feedback-radar/pipeline"
	"feedback-radar/scheduler"
	"feedback-radar/storage"
	"feedback-radar/synthesis"
)

// Adapter types to bridge between storage, Telegram and the notify interfaces.

type settingsAdapter struct {
	db *storage.DB
}

func (s *settingsAdapter) GetSetting(ctx context.Context, key string) (string, error) {
	v, err := s.db.GetSetting(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", notify.ErrSettingNotFound
	}
	return v, err
}

func (s *settingsAdapter) SetSetting(ctx context.Context, key, value string) error {
	return s.db.SetSetting(ctx, key, value)
}

type reportLookup struct {
	db      *storage.DB
	company string
}

func (r *reportLookup) LatestReport(ctx context.Context) (*synthesis.Report, error) {
	sr, err := r.db.LatestReport(ctx, r.company)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notify.ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return sr.Report, nil
}

type telegramSender struct {
	bot *tgbotapi.BotAPI
}

func (t *telegramSender) SendMessage(ctx context.Context, chatID int64, text string, html bool) (int64, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if html {
		msg.ParseMode = tgbotapi.ModeHTML
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		slog.Warn("failed to send message", "chat_id", chatID, "error", err)
		return 0, err
	}
	return int64(sent.MessageID), nil
}

// runTrigger starts runs in the background, one at a time. Runs use the
// trigger's own context so they outlive the request that started them.
type runTrigger struct {
	ctx     context.Context
	run     func(ctx context.Context)
	running atomic.Bool
}

func newRunTrigger(ctx context.Context, run func(ctx context.Context)) *runTrigger {
	return &runTrigger{ctx: ctx, run: run}
}

func (t *runTrigger) TriggerRun(_ context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return pipeline.ErrRunInProgress
	}
	go func() {
		defer t.running.Store(false)
		t.run(t.ctx)
	}()
	return nil
}

// runNow runs synchronously unless a run is already in progress.
func (t *runTrigger) runNow() {
	if !t.running.CompareAndSwap(false, true) {
		slog.Info("skipping scheduled run: previous run still in progress")
		return
	}
	defer t.running.Store(false)
	t.run(t.ctx)
}

type rescheduler struct {
	sched *scheduler.Scheduler
	job   func()
}

func (r *rescheduler) Reschedule(spec string) error {
	return r.sched.Schedule(spec, r.job)
}
