package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"feedback-radar/scheduler"
	"feedback-radar/synthesis"
)

// RunTrigger starts a pipeline run in the background.
type RunTrigger interface {
	TriggerRun(ctx context.Context) error
}

// ReportLookup finds the latest report.
type ReportLookup interface {
	LatestReport(ctx context.Context) (*synthesis.Report, error)
}

// ScheduleUpdater moves the periodic run to a new schedule.
type ScheduleUpdater interface {
	Reschedule(spec string) error
}

// CommandHandler handles bot commands.
type CommandHandler struct {
	sender   MessageSender
	settings SettingsStore
	trigger  RunTrigger
	reports  ReportLookup
	sched    ScheduleUpdater
}

// NewCommandHandler creates a new command handler. sched may be nil.
func NewCommandHandler(
	sender MessageSender,
	settings SettingsStore,
	trigger RunTrigger,
	reports ReportLookup,
	sched ScheduleUpdater,
) *CommandHandler {
	return &CommandHandler{
		sender:   sender,
		settings: settings,
		trigger:  trigger,
		reports:  reports,
		sched:    sched,
	}
}

// Handle routes a message to its command. Unknown text is ignored.
func (h *CommandHandler) Handle(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	cmd, args, _ := strings.Cut(text, " ")
	// Commands in groups arrive as /cmd@botname.
	cmd, _, _ = strings.Cut(cmd, "@")

	switch strings.ToLower(cmd) {
	case "/start":
		return h.HandleStart(ctx, chatID)
	case "/run":
		return h.HandleRun(ctx, chatID)
	case "/latest":
		return h.HandleLatest(ctx, chatID)
	case "/health":
		return h.HandleHealth(ctx, chatID)
	case "/schedule":
		return h.HandleSchedule(ctx, chatID, args)
	}
	return nil
}

// HandleStart registers the chat for digests.
func (h *CommandHandler) HandleStart(ctx context.Context, chatID int64) error {
	if err := h.settings.SetSetting(ctx, SettingChatID, strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("save chat_id: %w", err)
	}

	msg := "Welcome to Feedback Radar! 📡\n\n" +
		"This chat will receive a digest after every analysis.\n\n" +
		"Commands:\n" +
		"/run - Analyze the latest feedback now\n" +
		"/latest - Show the latest digest\n" +
		"/health - Show the current health score\n" +
		"/schedule - View or change when analyses run"

	_, err := h.sender.SendMessage(ctx, chatID, msg, false)
	return err
}

// HandleRun triggers an analysis.
func (h *CommandHandler) HandleRun(ctx context.Context, chatID int64) error {
	if err := h.trigger.TriggerRun(ctx); err != nil {
		_, sendErr := h.sender.SendMessage(ctx, chatID, fmt.Sprintf("Could not start analysis: %v", err), false)
		return errors.Join(fmt.Errorf("trigger run: %w", err), sendErr)
	}
	_, err := h.sender.SendMessage(ctx, chatID, "🔎 Analysis started. The digest will arrive when it is done.", false)
	return err
}

// HandleLatest sends the digest of the latest report.
func (h *CommandHandler) HandleLatest(ctx context.Context, chatID int64) error {
	report, err := h.reports.LatestReport(ctx)
	if errors.Is(err, ErrReportNotFound) {
		_, err := h.sender.SendMessage(ctx, chatID, "No analysis yet. Send /run to start one.", false)
		return err
	}
	if err != nil {
		return fmt.Errorf("get latest report: %w", err)
	}

	_, err = h.sender.SendMessage(ctx, chatID, FormatDigest(report), true)
	return err
}

// HandleHealth sends the latest health score.
func (h *CommandHandler) HandleHealth(ctx context.Context, chatID int64) error {
	report, err := h.reports.LatestReport(ctx)
	if errors.Is(err, ErrReportNotFound) {
		_, err := h.sender.SendMessage(ctx, chatID, "No analysis yet. Send /run to start one.", false)
		return err
	}
	if err != nil {
		return fmt.Errorf("get latest report: %w", err)
	}

	var msg string
	if t := report.Comparison.Trends; t != nil {
		msg = fmt.Sprintf("🩺 Health score: %d/100\n"+
			"Sentiment: %s (%+.2f)\n"+
			"Volume: %s (%+.1f%%)\n"+
			"Resolution rate: %d%%\n"+
			"New issue rate: %d%%",
			t.HealthScore,
			t.Sentiment.Direction, t.Sentiment.Delta,
			t.Volume.Direction, t.Volume.PercentChange,
			t.ResolutionRate, t.NewIssueRate)
	} else {
		msg = "🩺 Baseline established. A health score appears after the next analysis."
	}

	_, err = h.sender.SendMessage(ctx, chatID, msg, false)
	return err
}

// HandleSchedule shows or updates the analysis schedule.
func (h *CommandHandler) HandleSchedule(ctx context.Context, chatID int64, args string) error {
	args = strings.TrimSpace(args)

	if args == "" {
		current := "not set"
		if v, err := h.settings.GetSetting(ctx, SettingSchedule); err == nil {
			current = v
		}
		msg := fmt.Sprintf("Current schedule: %s\n\n"+
			"Update with:\n"+
			"/schedule HH:MM (daily)\n"+
			"/schedule <cron expression>", current)
		_, err := h.sender.SendMessage(ctx, chatID, msg, false)
		return err
	}

	if _, err := scheduler.ParseSpec(args); err != nil {
		_, err := h.sender.SendMessage(ctx, chatID, "Invalid schedule. Use HH:MM (e.g. 09:00) or a cron expression (e.g. 0 */6 * * *).", false)
		return err
	}

	if h.sched != nil {
		if err := h.sched.Reschedule(args); err != nil {
			return fmt.Errorf("reschedule: %w", err)
		}
	}
	if err := h.settings.SetSetting(ctx, SettingSchedule, args); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}

	_, err := h.sender.SendMessage(ctx, chatID, fmt.Sprintf("✅ Schedule updated to %s", args), false)
	return err
}
