// Package mail sends transactional mail over SMTP accounts resolved
// at send time (category override, database settings, environment
// fallback).
package mail

import (
	"context"
	"fmt"
	"io"

	"github.com/faktura/backend/internal/domain/invoicing"
	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"
)

// Message is one outbound mail, optionally with a single attachment.
type Message struct {
	To      []string
	Cc      []string
	Subject string
	Body    string
	// HTML switches the body content type from text/plain to text/html.
	HTML bool

	AttachmentName string
	Attachment     []byte
}

// Mailer delivers messages through the given SMTP account.
type Mailer interface {
	Send(ctx context.Context, account *invoicing.SMTPAccount, msg Message) error
}

// GomailMailer sends mail with gomail, dialing per message. Invoice
// volume is low enough that connection reuse is not worth the state.
type GomailMailer struct {
	logger *zap.Logger
}

var _ Mailer = (*GomailMailer)(nil)

// NewGomailMailer creates a new GomailMailer
func NewGomailMailer(logger *zap.Logger) *GomailMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GomailMailer{logger: logger}
}

// Send delivers the message. The context only gates the start of the
// dial; gomail itself does not take a context.
func (m *GomailMailer) Send(ctx context.Context, account *invoicing.SMTPAccount, msg Message) error {
	if !account.IsComplete() {
		return fmt.Errorf("smtp account is incomplete")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mail := gomail.NewMessage()
	if account.FromName != "" {
		mail.SetAddressHeader("From", account.From, account.FromName)
	} else {
		mail.SetHeader("From", account.From)
	}
	mail.SetHeader("To", msg.To...)
	if len(msg.Cc) > 0 {
		mail.SetHeader("Cc", msg.Cc...)
	}
	mail.SetHeader("Subject", msg.Subject)
	if msg.HTML {
		mail.SetBody("text/html", msg.Body)
	} else {
		mail.SetBody("text/plain", msg.Body)
	}

	if msg.AttachmentName != "" && len(msg.Attachment) > 0 {
		attachment := msg.Attachment
		mail.Attach(msg.AttachmentName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(attachment)
			return err
		}))
	}

	dialer := gomail.NewDialer(account.Host, account.Port, account.Username, account.Password)
	if err := dialer.DialAndSend(mail); err != nil {
		return fmt.Errorf("send mail via %s:%d: %w", account.Host, account.Port, err)
	}

	m.logger.Info("mail sent",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("host", account.Host),
		zap.Bool("attachment", msg.AttachmentName != ""))
	return nil
}

// DryRunMailer logs instead of sending. Used when outbound mail is
// disabled so send flows still complete with SKIPPED semantics upstream.
type DryRunMailer struct {
	logger *zap.Logger
}

var _ Mailer = (*DryRunMailer)(nil)

// NewDryRunMailer creates a DryRunMailer
func NewDryRunMailer(logger *zap.Logger) *DryRunMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunMailer{logger: logger}
}

// Send logs the would-be delivery and succeeds.
func (m *DryRunMailer) Send(_ context.Context, account *invoicing.SMTPAccount, msg Message) error {
	host := ""
	if account != nil {
		host = account.Host
	}
	m.logger.Info("mail suppressed (dry run)",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("host", host))
	return nil
}
