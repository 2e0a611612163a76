package mailer

import (
	"sync"
)

// Email is a message captured by MockMailer.
type Email struct {
	Recipient    string
	TemplateFile string
	Data         any
	Subject      string
}

// MockMailer renders templates like SMTPMailer but keeps the result in
// memory instead of sending it.
type MockMailer struct {
	mu     sync.RWMutex
	emails []Email
	err    error
}

func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

// FailWith makes every following Send return err.
func (m *MockMailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
}

func (m *MockMailer) Send(recipient, templateFile string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	subject, _, _, err := render(templateFile, data)
	if err != nil {
		return err
	}

	m.emails = append(m.emails, Email{
		Recipient:    recipient,
		TemplateFile: templateFile,
		Data:         data,
		Subject:      subject,
	})

	return nil
}

// SentEmails returns a copy of every captured email.
func (m *MockMailer) SentEmails() []Email {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emails := make([]Email, len(m.emails))
	copy(emails, m.emails)
	return emails
}
