package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"feedback-radar/synthesis"
	"feedback-radar/trend"
)

type mockTrigger struct {
	calls int
	err   error
}

func (m *mockTrigger) TriggerRun(ctx context.Context) error {
	m.calls++
	return m.err
}

type mockReports struct {
	report *synthesis.Report
}

func (m *mockReports) LatestReport(ctx context.Context) (*synthesis.Report, error) {
	if m.report == nil {
		return nil, ErrReportNotFound
	}
	return m.report, nil
}

type mockScheduler struct {
	specs []string
}

func (m *mockScheduler) Reschedule(spec string) error {
	m.specs = append(m.specs, spec)
	return nil
}

type handlerFixture struct {
	sender   *mockMessageSender
	settings *mockSettingsStore
	trigger  *mockTrigger
	reports  *mockReports
	sched    *mockScheduler
	handler  *CommandHandler
}

func newFixture() *handlerFixture {
	f := &handlerFixture{
		sender:   &mockMessageSender{},
		settings: newMockSettingsStore(),
		trigger:  &mockTrigger{},
		reports:  &mockReports{},
		sched:    &mockScheduler{},
	}
	f.handler = NewCommandHandler(f.sender, f.settings, f.trigger, f.reports, f.sched)
	return f
}

func (f *handlerFixture) lastText(t *testing.T) string {
	t.Helper()
	if len(f.sender.sentMessages) == 0 {
		t.Fatal("no message sent")
	}
	return f.sender.sentMessages[len(f.sender.sentMessages)-1].text
}

func TestHandleStart(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.handler.Handle(ctx, 12345, "/start"); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if f.settings.settings[SettingChatID] != "12345" {
		t.Errorf("chat_id = %q, want 12345", f.settings.settings[SettingChatID])
	}
	msg := f.lastText(t)
	for _, cmd := range []string{"/run", "/latest", "/health", "/schedule"} {
		if !strings.Contains(msg, cmd) {
			t.Errorf("welcome message should mention %s", cmd)
		}
	}
}

func TestHandleRun(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.handler.Handle(ctx, 1, "/run@FeedbackRadarBot"); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if f.trigger.calls != 1 {
		t.Errorf("trigger calls = %d, want 1", f.trigger.calls)
	}
	if !strings.Contains(f.lastText(t), "Analysis started") {
		t.Errorf("message = %q", f.lastText(t))
	}

	f.trigger.err = errors.New("pipeline run already in progress")
	if err := f.handler.HandleRun(ctx, 1); err == nil {
		t.Error("expected error when trigger fails")
	}
	if !strings.Contains(f.lastText(t), "already in progress") {
		t.Errorf("user should be told why, got %q", f.lastText(t))
	}
}

func TestHandleLatest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.handler.HandleLatest(ctx, 1); err != nil {
		t.Fatalf("HandleLatest failed: %v", err)
	}
	if !strings.Contains(f.lastText(t), "No analysis yet") {
		t.Errorf("message = %q", f.lastText(t))
	}

	f.reports.report = testReport()
	if err := f.handler.HandleLatest(ctx, 1); err != nil {
		t.Fatalf("HandleLatest failed: %v", err)
	}
	last := f.sender.sentMessages[len(f.sender.sentMessages)-1]
	if !last.html || !strings.Contains(last.text, "feedback radar") {
		t.Errorf("latest should send the HTML digest, got %+v", last)
	}
}

func TestHandleHealth(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.reports.report = &synthesis.Report{Comparison: trend.FirstRun()}
	if err := f.handler.HandleHealth(ctx, 1); err != nil {
		t.Fatalf("HandleHealth failed: %v", err)
	}
	if !strings.Contains(f.lastText(t), "Baseline established") {
		t.Errorf("message = %q", f.lastText(t))
	}

	f.reports.report = &synthesis.Report{Comparison: trend.Comparison{
		Changes: &trend.Changes{},
		Trends: &trend.Trends{
			HealthScore:    64,
			Sentiment:      trend.SentimentTrend{Direction: trend.DirectionImproving, Delta: 0.12},
			Volume:         trend.VolumeTrend{Direction: trend.DirectionUp, PercentChange: 25},
			ResolutionRate: 50,
			NewIssueRate:   20,
		},
	}}
	if err := f.handler.HandleHealth(ctx, 1); err != nil {
		t.Fatalf("HandleHealth failed: %v", err)
	}
	msg := f.lastText(t)
	for _, want := range []string{"64/100", "improving (+0.12)", "up (+25.0%)", "Resolution rate: 50%", "New issue rate: 20%"} {
		if !strings.Contains(msg, want) {
			t.Errorf("health message missing %q: %s", want, msg)
		}
	}
}

func TestHandleSchedule(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.handler.Handle(ctx, 1, "/schedule"); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(f.lastText(t), "not set") {
		t.Errorf("message = %q", f.lastText(t))
	}

	if err := f.handler.Handle(ctx, 1, "/schedule 0 */6 * * *"); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if f.settings.settings[SettingSchedule] != "0 */6 * * *" {
		t.Errorf("schedule = %q", f.settings.settings[SettingSchedule])
	}
	if len(f.sched.specs) != 1 || f.sched.specs[0] != "0 */6 * * *" {
		t.Errorf("rescheduled = %v", f.sched.specs)
	}

	if err := f.handler.Handle(ctx, 1, "/schedule 25:99"); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(f.lastText(t), "Invalid schedule") {
		t.Errorf("message = %q", f.lastText(t))
	}
	if len(f.sched.specs) != 1 {
		t.Error("invalid schedule should not reschedule")
	}
}

func TestHandleIgnoresOtherText(t *testing.T) {
	f := newFixture()
	for _, text := range []string{"hello", "", "/unknown", "  "} {
		if err := f.handler.Handle(context.Background(), 1, text); err != nil {
			t.Errorf("Handle(%q) error = %v", text, err)
		}
	}
	if len(f.sender.sentMessages) != 0 {
		t.Errorf("sent %d messages, want 0", len(f.sender.sentMessages))
	}
}
