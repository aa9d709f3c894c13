// Package notification delivers email to request owners. Delivery is
// best-effort: the approval transaction never waits on, or fails because of,
// the mail transport.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"time"
)

// Mailer sends a single message to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, textBody, htmlBody string) error
}

// NewMailerFromEnv selects a provider from MAIL_PROVIDER: "log" (default),
// "noop", or "webhook" (posts to MAIL_WEBHOOK_URL with MAIL_WEBHOOK_TOKEN).
func NewMailerFromEnv() Mailer {
	switch kind := os.Getenv("MAIL_PROVIDER"); kind {
	case "", "log":
		return logMailer{}
	case "noop":
		return noopMailer{}
	case "webhook":
		url := os.Getenv("MAIL_WEBHOOK_URL")
		if url == "" {
			log.Println("MAIL_PROVIDER=webhook but MAIL_WEBHOOK_URL is unset, falling back to log mailer")
			return logMailer{}
		}
		return webhookMailer{url: url, token: os.Getenv("MAIL_WEBHOOK_TOKEN")}
	default:
		log.Printf("unknown MAIL_PROVIDER %q, falling back to log mailer", kind)
		return logMailer{}
	}
}

type logMailer struct{}

func (logMailer) Send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	log.Printf("mail to %s: %s: %s", to, subject, textBody)
	return nil
}

type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	return nil
}

type webhookMailer struct {
	url   string
	token string
}

func (m webhookMailer) Send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	payload := map[string]string{
		"to":      to,
		"subject": subject,
		"text":    textBody,
		"html":    htmlBody,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("mail provider rejected request")
	}
	return nil
}

// Dispatcher sends mail on a separate goroutine and logs failures instead of
// returning them.
type Dispatcher struct {
	mailer  Mailer
	timeout time.Duration
}

func NewDispatcher(mailer Mailer) *Dispatcher {
	return &Dispatcher{mailer: mailer, timeout: 10 * time.Second}
}

// Notify dispatches the message asynchronously. Errors are logged, never returned.
func (d *Dispatcher) Notify(to, subject, textBody, htmlBody string) {
	if to == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.mailer.Send(ctx, to, subject, textBody, htmlBody); err != nil {
			log.Printf("failed to send mail to %s (%s): %v", to, subject, err)
		}
	}()
}
