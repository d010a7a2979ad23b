package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ConsoleChannel writes alerts as a bordered text block, for development
// and CLI use.
type ConsoleChannel struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleChannel writes to out, defaulting to stdout when out is nil.
func NewConsoleChannel(out io.Writer) *ConsoleChannel {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleChannel{out: out}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Send(_ context.Context, alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	border := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintln(&b, border)
	fmt.Fprintf(&b, "FAIRNESS DRIFT ALERT [%s]\n", strings.ToUpper(string(alert.Severity)))
	fmt.Fprintln(&b, border)
	fmt.Fprintf(&b, "ID:        %s\n", alert.ID)
	fmt.Fprintf(&b, "Time:      %s\n", alert.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Message:   %s\n", alert.Message)
	fmt.Fprintf(&b, "Method:    %s (threshold %.4g)\n", alert.Method, alert.Threshold)
	fmt.Fprintf(&b, "Drifted:   %d/%d metrics\n", alert.NumDrifted, alert.NumTotal)
	for _, name := range alert.DriftedMetrics {
		fmt.Fprintf(&b, "  - %s: %.4f\n", name, alert.DriftScores[name])
	}
	fmt.Fprintln(&b, border)

	_, err := io.WriteString(c.out, b.String())
	return err
}

func sortedMetricNames(scores map[string]float64) []string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WebhookChannel POSTs the alert as JSON to an arbitrary HTTP endpoint.
type WebhookChannel struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookChannel posts alerts to url with optional extra headers.
func NewWebhookChannel(url string, headers map[string]string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SlackChannel posts alerts to a Slack incoming webhook using Block Kit
// formatting.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

// NewSlackChannel posts alerts to a Slack incoming webhook URL.
func NewSlackChannel(webhookURL string, timeout time.Duration) *SlackChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *SlackChannel) Name() string { return "slack" }

var slackEmoji = map[string]string{
	"high":   ":rotating_light:",
	"medium": ":warning:",
	"low":    ":information_source:",
}

func (s *SlackChannel) Send(ctx context.Context, alert Alert) error {
	emoji, ok := slackEmoji[string(alert.Severity)]
	if !ok {
		emoji = ":bell:"
	}

	var lines []string
	for _, name := range alert.DriftedMetrics {
		lines = append(lines, fmt.Sprintf("• `%s`: %.4f", name, alert.DriftScores[name]))
	}

	payload := map[string]any{
		"text": fmt.Sprintf("%s Fairness drift alert: %s", emoji, alert.Message),
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Fairness drift alert", emoji),
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Severity:* %s\n*Method:* %s\n*Drifted:* %d/%d metrics\n%s",
						alert.Severity, alert.Method, alert.NumDrifted, alert.NumTotal,
						strings.Join(lines, "\n")),
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("Alert %s | %s", alert.ID, alert.Timestamp.Format(time.RFC3339)),
					},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}
