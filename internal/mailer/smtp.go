package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	BodyHTML string
	FromName string
	ReplyTo  string
}

// Receipt is returned for a successful delivery.
type Receipt struct {
	MessageID string
}

// TransportError marks failures of the transport itself — connect, TLS,
// or auth — as opposed to a single recipient being refused. The campaign
// runner's circuit breaker trips only on these.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mailer: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// SMTPConfig holds transport settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// SMTPMailer sends mail over SMTP with STARTTLS (implicit TLS on 465).
// Each Send dials a fresh connection; at campaign send rates the
// handshake cost is noise and a stale pooled session is one more way to
// lose a unit.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTP creates an SMTP-backed mailer.
func NewSMTP(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, eris.New("mailer: smtp host is required")
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.Username
	}
	if cfg.FromEmail == "" {
		return nil, eris.New("mailer: from email is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPMailer{cfg: cfg}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if msg.To == "" {
		return nil, eris.New("mailer: recipient address is empty")
	}

	messageID := makeMessageID(m.cfg.FromEmail)
	payload := m.buildPayload(msg, messageID)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial " + addr, Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.cfg.Timeout * 3))
	}

	// Port 465 is implicit TLS; everything else negotiates STARTTLS.
	if m.cfg.Port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: m.cfg.Host})
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "handshake", Err: err}
	}
	defer client.Close()

	if m.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return nil, &TransportError{Op: "starttls", Err: err}
			}
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return nil, &TransportError{Op: "auth", Err: err}
		}
	}

	if err := client.Mail(m.cfg.FromEmail); err != nil {
		return nil, &TransportError{Op: "mail from", Err: err}
	}
	// A refused recipient is a per-unit failure, not a transport failure.
	if err := client.Rcpt(msg.To); err != nil {
		return nil, eris.Wrapf(err, "mailer: recipient refused %s", msg.To)
	}

	w, err := client.Data()
	if err != nil {
		return nil, &TransportError{Op: "data", Err: err}
	}
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return nil, &TransportError{Op: "write body", Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, &TransportError{Op: "close body", Err: err}
	}

	if err := client.Quit(); err != nil {
		zap.L().Debug("smtp quit failed", zap.Error(err))
	}

	zap.L().Info("mail sent",
		zap.String("to", msg.To),
		zap.String("message_id", messageID),
	)
	return &Receipt{MessageID: messageID}, nil
}

func (m *SMTPMailer) buildPayload(msg Message, messageID string) []byte {
	fromName := msg.FromName
	if fromName == "" {
		fromName = m.cfg.FromName
	}

	var b strings.Builder
	if fromName != "" {
		fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", fromName), m.cfg.FromEmail)
	} else {
		fmt.Fprintf(&b, "From: %s\r\n", m.cfg.FromEmail)
	}
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.BodyHTML)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func makeMessageID(fromEmail string) string {
	domain := "agentiq.app"
	if at := strings.LastIndex(fromEmail, "@"); at >= 0 && at < len(fromEmail)-1 {
		domain = fromEmail[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}
