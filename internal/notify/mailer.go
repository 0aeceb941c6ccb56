package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"enrollment-reconciler/internal/config"
	"enrollment-reconciler/internal/gateway"

	"go.uber.org/zap"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier announces payments that reached no tenant.
type Notifier interface {
	PaymentReceived(ctx context.Context, tx gateway.Transaction) error
}

// Mailer sends HTML notifications over SMTP. smtp.SendMail upgrades the
// session with STARTTLS whenever the server offers it.
type Mailer struct {
	cfg  config.SMTPConfig
	send SendFunc
	log  *zap.Logger
}

// New returns a no-op notifier in TEST mode or when no SMTP host is set.
func New(cfg config.SMTPConfig, mode config.Mode, log *zap.Logger) Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	if mode == config.ModeTest || cfg.Host == "" || len(cfg.To) == 0 {
		log.Info("payment notifications disabled", zap.String("mode", string(mode)))
		return Nop{}
	}
	return NewMailer(cfg, smtp.SendMail, log)
}

func NewMailer(cfg config.SMTPConfig, send SendFunc, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{cfg: cfg, send: send, log: log}
}

var body = template.Must(template.New("payment").Parse(`<h2>New payment recorded</h2>
<p><strong>Transaction ID:</strong> {{.ID}}</p>
<p><strong>Date:</strong> {{.Date.Format "2006-01-02 15:04:05"}}</p>
<p><strong>Payer:</strong> {{.PayerName}}{{if .PayerEmail}} &lt;{{.PayerEmail}}&gt;{{end}}</p>
<p><strong>Amount:</strong> {{.Amount.StringFixed 2}} {{.Currency}}</p>
<p><strong>Item:</strong> {{.ItemName}}</p>
`))

func Subject(tx gateway.Transaction) string {
	return "New payment received - " + tx.ID
}

func (m *Mailer) PaymentReceived(_ context.Context, tx gateway.Transaction) error {
	var html bytes.Buffer
	if err := body.Execute(&html, tx); err != nil {
		return fmt.Errorf("render notification for %s: %w", tx.ID, err)
	}

	msg := m.message(Subject(tx), html.String())
	recipients := append(append([]string{}, m.cfg.To...), m.cfg.Cc...)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("send notification for %s: %w", tx.ID, err)
	}
	m.log.Info("payment notification sent", zap.String("transaction_id", tx.ID), zap.Int("recipients", len(recipients)))
	return nil
}

func (m *Mailer) message(subject, html string) []byte {
	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = mime.QEncoding.Encode("utf-8", m.cfg.FromName) + " <" + m.cfg.From + ">"
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(m.cfg.To, ", ") + "\r\n")
	if len(m.cfg.Cc) > 0 {
		b.WriteString("Cc: " + strings.Join(m.cfg.Cc, ", ") + "\r\n")
	}
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

// Nop discards notifications.
type Nop struct{}

func (Nop) PaymentReceived(context.Context, gateway.Transaction) error { return nil }
