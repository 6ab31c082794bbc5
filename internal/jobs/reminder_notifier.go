// reminder_notifier.go implements the ReminderNotifier background job, which
// emails employees whose acknowledgement requests are about to fall due or are
// already overdue. The reminder state is persisted (reminder_sent_at) so each
// request is reminded at most once, across restarts. An address the relay
// rejects permanently is settled the same way so it cannot hold the head of the
// batch. The job is a no-op when notifications.enabled is false or no SMTP host
// is configured.
package jobs

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/telemetry"
)

const reminderBatchSize = 200

// ReminderStore is the slice of the acknowledgement repository the notifier uses.
type ReminderStore interface {
	ListReminderTargets(ctx context.Context, windowEnd time.Time, limit int) ([]models.ReminderTarget, error)
	MarkReminderSent(ctx context.Context, requestID int64, at time.Time) error
}

// Mailer delivers one plain-text email.
type Mailer interface {
	Send(to, subject, body string) error
}

// UndeliverableError marks a recipient that retrying will not reach.
type UndeliverableError struct {
	To  string
	Err error
}

func (e *UndeliverableError) Error() string {
	return fmt.Sprintf("undeliverable to %s: %v", e.To, e.Err)
}

func (e *UndeliverableError) Unwrap() error { return e.Err }

// isPermanent reports whether a send failure will recur: an unusable address
// or a 5xx reply from the relay.
func isPermanent(err error) bool {
	var ue *UndeliverableError
	if errors.As(err, &ue) {
		return true
	}
	var pe *textproto.Error
	return errors.As(err, &pe) && pe.Code >= 500 && pe.Code < 600
}

// ReminderNotifier periodically emails employees about open acknowledgement requests.
type ReminderNotifier struct {
	store  ReminderStore
	mailer Mailer
	cfg    *config.NotificationsConfig
	window time.Duration
	now    func() time.Time
	runner *runner
}

// NewReminderNotifier creates a notifier sending through mailer. A nil mailer
// uses SMTP as configured in cfg.
func NewReminderNotifier(store ReminderStore, mailer Mailer, cfg *config.NotificationsConfig) *ReminderNotifier {
	if mailer == nil {
		mailer = NewSMTPMailer(cfg.SMTP)
	}
	days := cfg.ReminderWindowDays
	if days < 0 {
		days = 0
	}
	hours := cfg.ReminderIntervalHours
	if hours <= 0 {
		hours = 24
	}
	n := &ReminderNotifier{
		store:  store,
		mailer: mailer,
		cfg:    cfg,
		window: time.Duration(days) * 24 * time.Hour,
		now:    time.Now,
	}
	n.runner = newRunner("reminder_notifier", time.Duration(hours)*time.Hour, func(ctx context.Context) {
		if _, err := n.RunOnce(ctx); err != nil {
			slog.Error("reminder run failed", "error", err)
		}
	})
	return n
}

// Start begins the reminder loop.
func (n *ReminderNotifier) Start(ctx context.Context) {
	if !n.cfg.Enabled {
		slog.Info("reminder notifier disabled (notifications.enabled=false)")
		return
	}
	if n.cfg.SMTP.Host == "" {
		slog.Info("reminder notifier disabled (notifications.smtp.host not set)")
		return
	}
	n.runner.start(ctx)
}

// Stop signals the background loop to exit and waits for it.
func (n *ReminderNotifier) Stop() {
	n.runner.stop()
}

// RunOnce sends the pending reminders and returns how many went out. A request
// is marked reminded once its email was accepted or permanently refused;
// transient failures are retried on the next run.
func (n *ReminderNotifier) RunOnce(ctx context.Context) (int, error) {
	now := n.now().UTC()
	targets, err := n.store.ListReminderTargets(ctx, now.Add(n.window), reminderBatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, t := range targets {
		subject, body := reminderEmail(t, now)
		if err := n.mailer.Send(t.Email, subject, body); err != nil {
			if !isPermanent(err) {
				telemetry.ReminderEmailsFailedTotal.WithLabelValues("transient").Inc()
				slog.Warn("failed to send reminder", "request_id", t.RequestID, "error", err)
				continue
			}
			telemetry.ReminderEmailsFailedTotal.WithLabelValues("permanent").Inc()
			slog.Warn("reminder undeliverable, not retrying", "request_id", t.RequestID, "email", t.Email, "error", err)
		} else {
			telemetry.ReminderEmailsSentTotal.Inc()
			sent++
		}
		if err := n.store.MarkReminderSent(ctx, t.RequestID, now); err != nil {
			slog.Error("failed to mark reminder sent", "request_id", t.RequestID, "error", err)
		}
	}
	if sent > 0 {
		slog.Info("acknowledgement reminders sent", "count", sent, "candidates", len(targets))
	}
	return sent, nil
}

// reminderEmail renders the subject and body for one open request.
func reminderEmail(t models.ReminderTarget, now time.Time) (string, string) {
	policy := fmt.Sprintf("%s (version %s)", t.PolicyTitle, t.Version)
	due := t.DueDate.UTC().Format("January 2, 2006")

	var subject, status string
	if t.DueDate.Before(now) {
		subject = fmt.Sprintf("Overdue: please acknowledge %s", policy)
		status = fmt.Sprintf("This acknowledgement was due on %s and is now overdue.", due)
	} else {
		subject = fmt.Sprintf("Reminder: please acknowledge %s", policy)
		status = fmt.Sprintf("Please complete it by %s.", due)
	}

	body := strings.Join([]string{
		fmt.Sprintf("Hello %s,", t.FirstName),
		"",
		fmt.Sprintf("You have been asked to read and acknowledge %s.", policy),
		status,
		"",
		"Acknowledgements are part of our SOC 2 evidence; overdue requests are escalated.",
		"",
		"Policy Tracker",
	}, "\r\n")
	return subject, body
}

// SMTPMailer sends mail through the configured SMTP relay.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers one message. UseTLS selects implicit TLS (SMTPS); otherwise
// smtp.SendMail upgrades with STARTTLS when the server offers it.
func (m *SMTPMailer) Send(to, subject, body string) error {
	from, err := mail.ParseAddress(m.cfg.From)
	if err != nil {
		return fmt.Errorf("invalid from address %q: %w", m.cfg.From, err)
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return &UndeliverableError{To: to, Err: err}
	}

	msg := []byte(buildMessage(from, rcpt, subject, body))
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if m.cfg.UseTLS {
		return sendMailTLS(addr, m.cfg.Host, auth, from.Address, []string{rcpt.Address}, msg)
	}
	return smtp.SendMail(addr, auth, from.Address, []string{rcpt.Address}, msg)
}

func buildMessage(from, to *mail.Address, subject, body string) string {
	// Header values must not carry line breaks.
	subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(subject)
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		from.String(), to.String(), subject, time.Now().UTC().Format(time.RFC1123Z),
	)
	return headers + body + "\r\n"
}

// sendMailTLS connects via implicit TLS (port 465) and sends a message. When
// the TLS dial fails it falls back to smtp.SendMail, which negotiates STARTTLS.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
