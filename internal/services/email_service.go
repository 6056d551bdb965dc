package services

import (
	"fmt"
	"html"

	"gopkg.in/gomail.v2"
)

type EmailService interface {
	SendTaskAssigned(email, name, taskName, flowLabel string) error
	SendMention(email, name, taskName, author, body string) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer: dialer,
		from:   fromEmail,
	}
}

func (s *emailService) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	return s.dialer.DialAndSend(m)
}

func (s *emailService) SendTaskAssigned(email, name, taskName, flowLabel string) error {
	body := fmt.Sprintf(`
		<h3>Hola %s,</h3>
		<p>Se te asignó la tarea <strong>%s</strong> en %s.</p>
		<p>Revisa el detalle en el back office.</p>
	`, html.EscapeString(name), html.EscapeString(taskName), html.EscapeString(flowLabel))

	if err := s.send(email, "Nueva tarea asignada: "+taskName, body); err != nil {
		return fmt.Errorf("failed to send assignment email: %w", err)
	}
	return nil
}

func (s *emailService) SendMention(email, name, taskName, author, body string) error {
	content := fmt.Sprintf(`
		<h3>Hola %s,</h3>
		<p>%s te mencionó en la tarea <strong>%s</strong>:</p>
		<blockquote>%s</blockquote>
	`, html.EscapeString(name), html.EscapeString(author), html.EscapeString(taskName), html.EscapeString(body))

	if err := s.send(email, "Te mencionaron en "+taskName, content); err != nil {
		return fmt.Errorf("failed to send mention email: %w", err)
	}
	return nil
}
