package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ContentFeed/internal/domain"
	"ContentFeed/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// ErrNotConfigured is returned when the bot token or chat ID is missing.
var ErrNotConfigured = errors.New("telegram notifier misconfigured")

// Notifier sends ingestion run summaries to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Configured reports whether messages can be sent at all.
func (n *Notifier) Configured() bool {
	return n != nil && n.botToken != "" && n.chatID != ""
}

// PublishRunSummary posts a Markdown summary of one ingestion run.
func (n *Notifier) PublishRunSummary(ctx context.Context, entry domain.IngestionLogEntry) error {
	return n.send(ctx, FormatRunSummary(entry))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if !n.Configured() || n.client == nil {
		return ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(n.apiBase, "/"), n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// FormatRunSummary renders the message body for a run.
func FormatRunSummary(entry domain.IngestionLogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Content ingestion %s*\n", entry.Status)
	if entry.RunID != "" {
		fmt.Fprintf(&b, "Run: `%s`\n", entry.RunID)
	}
	fmt.Fprintf(&b, "Processed: %d\nFiltered: %d\nErrors: %d\n", entry.ProcessedCount, entry.FilteredCount, entry.ErrorCount)
	fmt.Fprintf(&b, "Duration: %s\n", (time.Duration(entry.DurationMs) * time.Millisecond).Round(time.Millisecond))
	if entry.Message != "" {
		fmt.Fprintf(&b, "\n%s", entry.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}
