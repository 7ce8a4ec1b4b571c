package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/unclebandit/charityng-backend/internal/config"
	"github.com/unclebandit/charityng-backend/internal/logger"
)

const defaultLocale = "en"

// Mailer is the outbound mail boundary.
type Mailer interface {
	Send(ctx context.Context, subject string, recipients []string, templateName, locale string, variables map[string]any) error
}

// SMTPMailer renders html templates from disk and delivers them over SMTP.
type SMTPMailer struct {
	dialer      *gomail.Dialer
	from        string
	templateDir string
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer:      gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:        cfg.SenderAddress,
		templateDir: cfg.TemplateDir,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, subject string, recipients []string, templateName, locale string, variables map[string]any) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}
	body, err := Render(m.templateDir, templateName, locale, variables)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send %s mail: %w", templateName, err)
	}
	return nil
}

// Render executes templates/emails/{locale}/{name}.html, falling back to the
// default locale when the localized template is missing.
func Render(dir, name, locale string, variables map[string]any) (string, error) {
	if locale == "" {
		locale = defaultLocale
	}
	path := filepath.Join(dir, locale, name+".html")
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(dir, defaultLocale, name+".html")
	}
	tpl, err := template.ParseFiles(path)
	if err != nil {
		return "", fmt.Errorf("failed to load template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, variables); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// LogMailer only logs. Used when no SMTP host is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, subject string, recipients []string, templateName, locale string, variables map[string]any) error {
	logger.FromContext(ctx).WithFields(logrus.Fields{
		"subject":    subject,
		"recipients": recipients,
		"template":   templateName,
		"locale":     locale,
	}).Info("mail not sent, no SMTP host configured")
	return nil
}

// SendAsync delivers in the background. Failures are logged and never reach
// the caller.
func SendAsync(m Mailer, subject string, recipients []string, templateName, locale string, variables map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := m.Send(ctx, subject, recipients, templateName, locale, variables); err != nil {
			logger.L().WithError(err).WithField("template", templateName).Error("mail delivery failed")
		}
	}()
}
