package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SIEMConfig configures delivery to a SIEM platform.
type SIEMConfig struct {
	// Provider selects the wire format: splunk, datadog, elastic or
	// sumologic.
	Provider string `json:"provider"`
	// Endpoint is the ingestion URL.
	Endpoint string `json:"endpoint"`
	// APIKey authenticates the request. Sumo Logic collectors embed the
	// token in the endpoint URL and leave this empty.
	APIKey string `json:"api_key"`
	// SourceType categorizes events: the Splunk sourcetype or the Elastic
	// index name.
	SourceType string        `json:"source_type"`
	Timeout    time.Duration `json:"timeout"`
}

// SIEMChannel forwards alerts to a SIEM platform.
type SIEMChannel struct {
	config SIEMConfig
	client *http.Client
}

// NewSIEMChannel validates the provider up front so a typo fails at wiring
// time instead of on the first alert.
func NewSIEMChannel(cfg SIEMConfig) (*SIEMChannel, error) {
	switch cfg.Provider {
	case "splunk", "datadog", "elastic", "sumologic":
	default:
		return nil, fmt.Errorf("unsupported SIEM provider %q", cfg.Provider)
	}
	if cfg.SourceType == "" {
		cfg.SourceType = "rawls_fairness"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SIEMChannel{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *SIEMChannel) Name() string { return "siem" }

type siemEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Alert     Alert     `json:"alert"`
}

func (s *SIEMChannel) Send(ctx context.Context, alert Alert) error {
	event := siemEvent{
		Timestamp: alert.Timestamp,
		EventType: "fairness_drift",
		Severity:  string(alert.Severity),
		Source:    "rawls",
		Message:   alert.Message,
		Alert:     alert,
	}

	switch s.config.Provider {
	case "splunk":
		return s.sendSplunk(ctx, event)
	case "datadog":
		return s.sendDatadog(ctx, event)
	case "elastic":
		return s.sendElastic(ctx, event)
	default:
		return s.sendSumoLogic(ctx, event)
	}
}

// sendSplunk posts one HEC envelope: the event wrapped with ingest time and
// sourcetype.
func (s *SIEMChannel) sendSplunk(ctx context.Context, event siemEvent) error {
	envelope := map[string]any{
		"time":       event.Timestamp.Unix(),
		"sourcetype": s.config.SourceType,
		"event":      event,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode splunk event: %w", err)
	}
	return s.post(ctx, s.config.Endpoint, payload, "application/json", map[string]string{
		"Authorization": fmt.Sprintf("Splunk %s", s.config.APIKey),
	})
}

// sendDatadog posts a single-element JSON array to the Logs API.
func (s *SIEMChannel) sendDatadog(ctx context.Context, event siemEvent) error {
	payload, err := json.Marshal([]siemEvent{event})
	if err != nil {
		return fmt.Errorf("encode datadog event: %w", err)
	}
	return s.post(ctx, s.config.Endpoint, payload, "application/json", map[string]string{
		"DD-API-KEY": s.config.APIKey,
	})
}

// sendElastic posts one bulk-API pair: index action line plus document
// line, newline-delimited.
func (s *SIEMChannel) sendElastic(ctx context.Context, event siemEvent) error {
	var payload bytes.Buffer
	action := map[string]any{"index": map[string]any{"_index": s.config.SourceType}}
	if err := json.NewEncoder(&payload).Encode(action); err != nil {
		return fmt.Errorf("encode elastic action: %w", err)
	}
	if err := json.NewEncoder(&payload).Encode(event); err != nil {
		return fmt.Errorf("encode elastic event: %w", err)
	}
	return s.post(ctx, s.config.Endpoint+"/_bulk", payload.Bytes(), "application/x-ndjson", map[string]string{
		"Authorization": fmt.Sprintf("ApiKey %s", s.config.APIKey),
	})
}

// sendSumoLogic posts a JSON array to an HTTP collector; the collector URL
// carries the auth token.
func (s *SIEMChannel) sendSumoLogic(ctx context.Context, event siemEvent) error {
	payload, err := json.Marshal([]siemEvent{event})
	if err != nil {
		return fmt.Errorf("encode sumologic event: %w", err)
	}
	return s.post(ctx, s.config.Endpoint, payload, "application/json", map[string]string{
		"X-Sumo-Category": s.config.SourceType,
	})
}

func (s *SIEMChannel) post(ctx context.Context, url string, payload []byte, contentType string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", s.config.Provider, err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", s.config.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", s.config.Provider, resp.StatusCode)
	}
	return nil
}
