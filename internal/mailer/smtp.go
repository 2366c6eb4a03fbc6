package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"
	mail "gopkg.in/mail.v2"
)

type SMTPMailer struct {
	dialer    *mail.Dialer
	fromEmail string
	backoff   time.Duration
}

func NewSMTPMailer(host string, port int, username, password, fromEmail string) (*SMTPMailer, error) {
	if host == "" || fromEmail == "" {
		return nil, errors.New("smtp host and from address are required")
	}
	d := mail.NewDialer(host, port, username, password)
	d.Timeout = 15 * time.Second
	return &SMTPMailer{dialer: d, fromEmail: fromEmail, backoff: time.Second}, nil
}

// render executes the "subject" and "body" blocks of an embedded template.
func render(templateFile string, data any) (subject, body string, err error) {
	tmpl, err := template.ParseFS(FS, "templates/"+templateFile)
	if err != nil {
		return "", "", err
	}

	s := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(s, "subject", data); err != nil {
		return "", "", err
	}
	b := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(b, "body", data); err != nil {
		return "", "", err
	}
	return s.String(), b.String(), nil
}

func (m *SMTPMailer) Send(templateFile, username, email string, data any) (int, error) {
	subject, body, err := render(templateFile, data)
	if err != nil {
		return -1, err
	}

	msg := mail.NewMessage()
	msg.SetAddressHeader("From", m.fromEmail, FromName)
	msg.SetAddressHeader("To", email, username)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	var lastErr error
	for i := 0; i < maxRetires; i++ {
		if lastErr = m.dialer.DialAndSend(msg); lastErr == nil {
			return 200, nil
		}
		time.Sleep(m.backoff * time.Duration(i+1))
	}
	return -1, fmt.Errorf("failed to send email after %d attempts: %w", maxRetires, lastErr)
}

// LogMailer renders templates and logs instead of sending. Used when no SMTP
// server is configured.
type LogMailer struct {
	logger *zap.SugaredLogger
}

func NewLogMailer(logger *zap.SugaredLogger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(templateFile, username, email string, data any) (int, error) {
	subject, _, err := render(templateFile, data)
	if err != nil {
		return -1, err
	}
	m.logger.Infow("email not sent (no SMTP configured)", "to", email, "name", username, "subject", subject)
	return 200, nil
}
