// Package notify sends run outcome notifications to Slack.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kanataki-zwei/pipecraft/internal/config"
	"github.com/kanataki-zwei/pipecraft/internal/store"
)

// Notifier sends notifications to a Slack webhook.
type Notifier struct {
	config     *config.SlackConfig
	httpClient *http.Client
}

// SlackMessage represents a Slack webhook message
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// New creates a new Slack notifier
func New(cfg *config.SlackConfig) *Notifier {
	if cfg == nil {
		cfg = &config.SlackConfig{Enabled: false}
	}
	return &Notifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled returns true if notifications are enabled
func (n *Notifier) IsEnabled() bool {
	return n.config != nil && n.config.Enabled && n.config.WebhookURL != ""
}

// RunCompleted sends a notification for a run that reached a terminal state.
func (n *Notifier) RunCompleted(syncName string, run *store.Run) error {
	if !n.IsEnabled() {
		return nil
	}

	duration := "-"
	if run.EndedAt != nil {
		duration = run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
	}

	var attachment SlackAttachment
	switch run.Status {
	case store.RunSuccess:
		rows := int64(0)
		if run.RowCount != nil {
			rows = *run.RowCount
		}
		attachment = SlackAttachment{
			Color: "#36a64f", // green
			Title: "Sync Succeeded",
			Fields: []SlackField{
				{Title: "Sync", Value: syncName, Short: true},
				{Title: "Run", Value: fmt.Sprintf("%d", run.ID), Short: true},
				{Title: "Rows", Value: fmt.Sprintf("%d", rows), Short: true},
				{Title: "Duration", Value: duration, Short: true},
			},
			Footer:    "pipecraft",
			Timestamp: time.Now().Unix(),
		}
	case store.RunFailed:
		attachment = SlackAttachment{
			Color: "#ff0000", // red
			Title: "Sync Failed",
			Text:  run.ErrorMessage,
			Fields: []SlackField{
				{Title: "Sync", Value: syncName, Short: true},
				{Title: "Run", Value: fmt.Sprintf("%d", run.ID), Short: true},
				{Title: "Duration", Value: duration, Short: true},
			},
			Footer:    "pipecraft",
			Timestamp: time.Now().Unix(),
		}
	default:
		return nil
	}

	icon := ":white_check_mark:"
	if run.Status == store.RunFailed {
		icon = ":x:"
	}

	return n.send(SlackMessage{
		Channel:     n.config.Channel,
		Username:    n.getUsername(),
		IconEmoji:   icon,
		Attachments: []SlackAttachment{attachment},
	})
}

func (n *Notifier) getUsername() string {
	if n.config.Username != "" {
		return n.config.Username
	}
	return "pipecraft"
}

func (n *Notifier) send(msg SlackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	resp, err := n.httpClient.Post(n.config.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sending slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
