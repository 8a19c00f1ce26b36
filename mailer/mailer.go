// Package mailer sends the transactional e-mails of the triage API.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const FromName = "Nirog AI"

type Message struct {
	ToName  string
	ToEmail string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNotConfigured is returned when no transport credentials were provided.
var ErrNotConfigured = errors.New("mailer: no e-mail transport configured")

var headerSafe = strings.NewReplacer("\r", "", "\n", "")

type smtpMailer struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTP returns a mailer that logs into host:port with user/pass, the way
// a Gmail app password is used.
func NewSMTP(host string, port int, user, pass string) Mailer {
	return &smtpMailer{
		addr: host + ":" + strconv.Itoa(port),
		from: user,
		auth: smtp.PlainAuth("", user, pass, host),
	}
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if m.from == "" {
		return ErrNotConfigured
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %q <%s>\r\n", FromName, m.from)
	fmt.Fprintf(&b, "To: %s\r\n", headerSafe.Replace(msg.ToEmail))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", headerSafe.Replace(msg.Subject)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(m.addr, m.auth, m.from, []string{msg.ToEmail}, []byte(b.String()))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sendgridMailer struct {
	apiKey string
	from   string
}

func NewSendgrid(apiKey, from string) Mailer {
	return &sendgridMailer{
		apiKey: apiKey,
		from:   from,
	}
}

func (sg *sendgridMailer) Send(ctx context.Context, msg Message) error {
	m := mail.NewV3MailInit(
		mail.NewEmail(FromName, sg.from), msg.Subject,
		mail.NewEmail(msg.ToName, msg.ToEmail),
		mail.NewContent("text/html", msg.HTML))

	req := sendgrid.GetRequest(sg.apiKey, "/v3/mail/send", "https://api.sendgrid.com")
	req.Method = "POST"
	req.Body = mail.GetRequestBody(m)
	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
