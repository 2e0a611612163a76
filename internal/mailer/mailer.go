package mailer

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/go-mail/mail/v2"
)

//go:embed "templates"
var templateFS embed.FS

type Mailer interface {
	Send(recipient, templateFile string, data any) error
}

// SMTPMailer renders the "subject", "plainBody" and "htmlBody" blocks of an
// embedded template and sends them as a multipart message.
type SMTPMailer struct {
	dialer *mail.Dialer
	sender string
	// attempts before Send gives up
	attempts int
}

func NewSMTPMailer(host string, port int, username, password, sender string) *SMTPMailer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 5 * time.Second

	return &SMTPMailer{
		dialer:   dialer,
		sender:   sender,
		attempts: 3,
	}
}

func (m *SMTPMailer) Send(recipient, templateFile string, data any) error {
	subject, plainBody, htmlBody, err := render(templateFile, data)
	if err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", recipient)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", plainBody)
	msg.AddAlternative("text/html", htmlBody)

	for i := 1; i <= m.attempts; i++ {
		err = m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}

		if i < m.attempts {
			time.Sleep(500 * time.Millisecond)
		}
	}

	return fmt.Errorf("sending mail to %s: %w", recipient, err)
}

func render(templateFile string, data any) (subject, plainBody, htmlBody string, err error) {
	tmpl, err := template.New("email").ParseFS(templateFS, "templates/"+templateFile)
	if err != nil {
		return "", "", "", err
	}

	subjectBuf := new(bytes.Buffer)
	err = tmpl.ExecuteTemplate(subjectBuf, "subject", data)
	if err != nil {
		return "", "", "", err
	}

	plainBuf := new(bytes.Buffer)
	err = tmpl.ExecuteTemplate(plainBuf, "plainBody", data)
	if err != nil {
		return "", "", "", err
	}

	htmlTmpl, err := htmltemplate.New("email").ParseFS(templateFS, "templates/"+templateFile)
	if err != nil {
		return "", "", "", err
	}

	htmlBuf := new(bytes.Buffer)
	err = htmlTmpl.ExecuteTemplate(htmlBuf, "htmlBody", data)
	if err != nil {
		return "", "", "", err
	}

	return subjectBuf.String(), plainBuf.String(), htmlBuf.String(), nil
}
