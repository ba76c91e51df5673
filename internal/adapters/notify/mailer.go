package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"

	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// InlineImage is an attachment referenced from the HTML body by cid
type InlineImage struct {
	Name string // cid and attachment name
	Path string // file on disk
}

// SendParams describes one templated email
type SendParams struct {
	To           string
	ToName       string
	Subject      string
	TemplateName string // without the .html extension
	Context      map[string]interface{}
	InlineImages []InlineImage
}

// Sender delivers one rendered email. Satisfied by Mailer; tests stub it.
type Sender interface {
	Send(params SendParams) error
}

// Mailer renders templates and delivers them over SMTP
type Mailer struct {
	dialer      *gomail.Dialer
	fromAddress string
	fromName    string
}

// NewMailer creates an SMTP mailer. Credentials are the shared
// MAIL_USERNAME/MAIL_PASSWORD pair also used for IMAP.
func NewMailer(host string, port int, username, password, fromAddress, fromName string) *Mailer {
	if fromAddress == "" {
		fromAddress = username
	}
	return &Mailer{
		dialer:      gomail.NewDialer(host, port, username, password),
		fromAddress: fromAddress,
		fromName:    fromName,
	}
}

// Send renders the template and delivers the message synchronously so the
// caller can record success or failure in the email log.
func (m *Mailer) Send(params SendParams) error {
	body, err := Render(params.TemplateName, params.Context)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.fromAddress, m.fromName)
	msg.SetAddressHeader("To", params.To, params.ToName)
	msg.SetHeader("Subject", params.Subject)
	msg.SetBody("text/html", body)

	for _, img := range params.InlineImages {
		img := img
		msg.Embed(img.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			f, err := os.Open(img.Path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(w, f)
			return err
		}))
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", params.To, err)
	}
	return nil
}

// Render executes a named template against ctx
func Render(name string, ctx map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".html", ctx); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}
