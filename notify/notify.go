// Package notify delivers report digests to Telegram and answers bot commands.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"feedback-radar/synthesis"
	"feedback-radar/trend"
)

// Setting keys.
const (
	SettingChatID   = "chat_id"
	SettingSchedule = "schedule"
)

// Telegram rejects messages longer than this many characters.
const maxMessageLen = 4096

const maxDigestAreas = 5

// Sentinel errors for dependency interfaces.
var (
	ErrSettingNotFound = errors.New("setting not found")
	ErrReportNotFound  = errors.New("report not found")
	ErrNoChat          = errors.New("no chat registered: send /start to the bot")
)

// MessageSender sends messages to Telegram.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, html bool) (int64, error)
}

// SettingsStore manages persistent settings.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Notifier sends the what's-new digest of each report.
type Notifier struct {
	sender   MessageSender
	settings SettingsStore
	chatID   int64
}

// NewNotifier creates a notifier. chatID is used when no chat has registered
// through /start; zero means none.
func NewNotifier(sender MessageSender, settings SettingsStore, chatID int64) *Notifier {
	return &Notifier{sender: sender, settings: settings, chatID: chatID}
}

// ChatID returns the chat to notify, preferring the registered one.
func (n *Notifier) ChatID(ctx context.Context) (int64, error) {
	if n.settings != nil {
		v, err := n.settings.GetSetting(ctx, SettingChatID)
		switch {
		case err == nil:
			id, perr := strconv.ParseInt(v, 10, 64)
			if perr != nil {
				return 0, fmt.Errorf("parse chat_id %q: %w", v, perr)
			}
			return id, nil
		case !errors.Is(err, ErrSettingNotFound):
			return 0, fmt.Errorf("get chat_id: %w", err)
		}
	}
	if n.chatID == 0 {
		return 0, ErrNoChat
	}
	return n.chatID, nil
}

// NotifyReport sends the report digest.
func (n *Notifier) NotifyReport(ctx context.Context, report *synthesis.Report) error {
	chatID, err := n.ChatID(ctx)
	if err != nil {
		return err
	}
	if _, err := n.sender.SendMessage(ctx, chatID, FormatDigest(report), true); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	return nil
}

// FormatDigest renders a report as a Telegram HTML message.
func FormatDigest(r *synthesis.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📡 <b>%s feedback radar</b>\n", html.EscapeString(r.CompanyName))
	if r.WhatsNew.Headline != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(r.WhatsNew.Headline))
	}
	b.WriteString("\n")

	if r.TLDR != "" {
		fmt.Fprintf(&b, "%s\n\n", html.EscapeString(r.TLDR))
	}

	if r.WhatsNew.HealthScore != nil {
		fmt.Fprintf(&b, "🩺 Health: <b>%d</b>/100\n", *r.WhatsNew.HealthScore)
	}
	fmt.Fprintf(&b, "😊 %.0f%% positive · 😐 %.0f%% neutral · 😠 %.0f%% negative",
		r.Sentiment.Positive, r.Sentiment.Neutral, r.Sentiment.Negative)
	if r.Sentiment.Mood != "" {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(r.Sentiment.Mood))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "📊 %d analyzed, %d high-signal\n",
		r.Metadata.TotalAnalyzed, r.Metadata.HighSignalCount)
	if r.WhatsNew.Volume != "" {
		fmt.Fprintf(&b, "📈 Volume: %s\n", html.EscapeString(r.WhatsNew.Volume))
	}

	if len(r.FocusAreas) > 0 {
		b.WriteString("\n<b>Focus areas</b>\n")
		for i, fa := range r.FocusAreas {
			if i == maxDigestAreas {
				fmt.Fprintf(&b, "…and %d more\n", len(r.FocusAreas)-maxDigestAreas)
				break
			}
			fmt.Fprintf(&b, "%d. %s <b>%s</b> (%d mentions, impact %.1f)",
				i+1, changeIcon(fa.Trend), html.EscapeString(fa.Title), fa.Frequency, fa.ImpactScore)
			if fa.SeverityLabel != "" {
				fmt.Fprintf(&b, " [%s]", html.EscapeString(fa.SeverityLabel))
			}
			b.WriteString("\n")
			if fa.TopQuote != "" {
				fmt.Fprintf(&b, "   <i>“%s”</i>\n", html.EscapeString(fa.TopQuote))
			}
		}
	}

	if len(r.WhatsNew.Highlights) > 0 {
		b.WriteString("\n<b>What changed</b>\n")
		for _, h := range r.WhatsNew.Highlights {
			fmt.Fprintf(&b, "• %s\n", html.EscapeString(h))
		}
	}

	return truncate(strings.TrimRight(b.String(), "\n"), maxMessageLen)
}

func changeIcon(tag *trend.Tag) string {
	if tag == nil {
		return "•"
	}
	switch tag.ChangeType {
	case trend.ChangeNew:
		return "🆕"
	case trend.ChangeWorsened:
		return "🔺"
	case trend.ChangeImproved:
		return "🔻"
	case trend.ChangeStable:
		return "➖"
	default:
		return "•"
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
