// Package notify delivers transactional email over SMTP and push
// notifications through Firebase Cloud Messaging.
package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"github.com/ariefcatur/go-commerce-backend/internal/config"
)

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Dialer is satisfied by *mail.Client.
type Dialer interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
}

type Mailer struct {
	client Dialer
	from   string
	log    *logrus.Entry
}

func NewMailer(cfg config.SMTPConfig, log *logrus.Entry) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	c, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return NewMailerWithDialer(c, cfg.From, log), nil
}

func NewMailerWithDialer(d Dialer, from string, log *logrus.Entry) *Mailer {
	return &Mailer{client: d, from: from, log: log}
}

func (m *Mailer) build(e Email) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(e.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(e.Subject)
	msg.SetMessageID()
	switch {
	case e.Text != "" && e.HTML != "":
		msg.SetBodyString(mail.TypeTextPlain, e.Text)
		msg.AddAlternativeString(mail.TypeTextHTML, e.HTML)
	case e.HTML != "":
		msg.SetBodyString(mail.TypeTextHTML, e.HTML)
	default:
		msg.SetBodyString(mail.TypeTextPlain, e.Text)
	}
	return msg, nil
}

// Send delivers one email. Errors are returned untouched so the queue can retry.
func (m *Mailer) Send(ctx context.Context, e Email) (string, error) {
	msg, err := m.build(e)
	if err != nil {
		return "", err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		m.log.WithError(err).WithField("to", e.To).Error("send email")
		return "", err
	}
	id := msg.GetMessageID()
	m.log.WithFields(logrus.Fields{"to": e.To, "message_id": id}).Info("email sent")
	return id, nil
}
