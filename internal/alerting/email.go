package alerting

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	// UseTLS dials with implicit TLS (typically port 465). Without it the
	// plain SMTP path is used, which upgrades via STARTTLS when the server
	// offers it.
	UseTLS bool `json:"use_tls"`
}

// EmailChannel sends alerts as HTML email over SMTP.
type EmailChannel struct {
	config EmailConfig
}

// NewEmailChannel creates an email channel.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	return &EmailChannel{config: cfg}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(e.config.To) == 0 {
		return fmt.Errorf("email channel has no recipients")
	}

	msg := e.buildMessage(alert)
	addr := net.JoinHostPort(e.config.Host, fmt.Sprintf("%d", e.config.Port))

	var auth smtp.Auth
	if e.config.Username != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	}

	if e.config.UseTLS {
		return e.sendTLS(ctx, addr, auth, msg)
	}
	if err := smtp.SendMail(addr, auth, e.config.From, e.config.To, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (e *EmailChannel) sendTLS(ctx context.Context, addr string, auth smtp.Auth, msg []byte) error {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	tlsConn := tls.Client(conn, &tls.Config{ServerName: e.config.Host})

	client, err := smtp.NewClient(tlsConn, e.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(e.config.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range e.config.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

var severityColor = map[string]string{
	"high":   "#dc3545",
	"medium": "#ffc107",
	"low":    "#17a2b8",
}

func (e *EmailChannel) buildMessage(alert Alert) []byte {
	color, ok := severityColor[string(alert.Severity)]
	if !ok {
		color = "#6c757d"
	}

	var rows strings.Builder
	for _, name := range alert.DriftedMetrics {
		fmt.Fprintf(&rows, "<tr><td style=\"padding:4px 12px\">%s</td><td style=\"padding:4px 12px\">%.4f</td></tr>",
			name, alert.DriftScores[name])
	}

	body := fmt.Sprintf(`<html><body style="font-family:sans-serif">
<h2 style="color:%s">Fairness drift alert [%s]</h2>
<p>%s</p>
<p>Method: <b>%s</b> | Threshold: <b>%.4g</b> | Drifted: <b>%d/%d</b></p>
<table border="1" style="border-collapse:collapse">
<tr><th style="padding:4px 12px">Metric</th><th style="padding:4px 12px">Drift score</th></tr>
%s
</table>
<p style="color:#6c757d;font-size:12px">Alert %s at %s</p>
</body></html>`,
		color, strings.ToUpper(string(alert.Severity)), alert.Message,
		alert.Method, alert.Threshold, alert.NumDrifted, alert.NumTotal,
		rows.String(), alert.ID, alert.Timestamp.Format(time.RFC3339))

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.config.To, ", "))
	fmt.Fprintf(&msg, "Subject: [%s] Fairness drift alert\r\n", strings.ToUpper(string(alert.Severity)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}
