package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/jonathan/job-monitor/internal/types"
)

// SendMailFunc delivers a fully formed message. It must honour ctx.
type SendMailFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailOptions configures the SMTP digest sink.
type EmailOptions struct {
	Server    string
	Port      int
	Sender    string
	Password  string
	Recipient string
	// Send overrides the SMTP transport, mainly for tests.
	Send SendMailFunc
}

// Email sends an HTML digest over SMTP with STARTTLS and PLAIN auth.
type Email struct {
	opts EmailOptions
}

// NewEmail creates an email sink.
func NewEmail(opts EmailOptions) *Email {
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.Send == nil {
		opts.Send = sendMail
	}
	return &Email{opts: opts}
}

// Name implements Sink.
func (e *Email) Name() string { return "email" }

// Notify implements Sink.
func (e *Email) Notify(ctx context.Context, postings []types.Posting) error {
	msg, err := e.message(postings)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(e.opts.Server, strconv.Itoa(e.opts.Port))
	auth := smtp.PlainAuth("", e.opts.Sender, e.opts.Password, e.opts.Server)
	if err := e.opts.Send(ctx, addr, auth, e.opts.Sender, []string{e.opts.Recipient}, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", e.opts.Recipient, err)
	}
	return nil
}

func subject(n int) string {
	if n == 1 {
		return "1 New Job Listing Found!"
	}
	return fmt.Sprintf("%d New Job Listings Found!", n)
}

func (e *Email) message(postings []types.Posting) ([]byte, error) {
	var body bytes.Buffer
	if err := digestTemplate.Execute(&body, struct {
		Count    int
		Plural   bool
		Postings []types.Posting
	}{len(postings), len(postings) != 1, postings}); err != nil {
		return nil, fmt.Errorf("failed to render email body: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.opts.Sender)
	fmt.Fprintf(&msg, "To: %s\r\n", e.opts.Recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject(len(postings))))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// sendMail is smtp.SendMail with a context-bounded dial and mandatory STARTTLS.
func sendMail(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = c.Close() }()

	if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

var digestTemplate = template.Must(template.New("digest").Parse(`<html>
<head>
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 800px; margin: 0 auto; padding: 20px; }
  .header { background-color: #4CAF50; color: white; padding: 20px; text-align: center; border-radius: 5px; }
  .job-card { border: 1px solid #ddd; border-radius: 5px; padding: 15px; margin: 15px 0; background-color: #f9f9f9; }
  .job-title { font-size: 18px; font-weight: bold; color: #2196F3; margin-bottom: 10px; }
  .company { font-weight: bold; color: #555; }
  .location { color: #777; }
  .source-badge { display: inline-block; padding: 3px 8px; background-color: #2196F3; color: white; border-radius: 3px; font-size: 12px; }
  .apply-button { display: inline-block; padding: 10px 20px; background-color: #4CAF50; color: white; text-decoration: none; border-radius: 5px; margin-top: 10px; }
  .footer { text-align: center; margin-top: 30px; padding-top: 20px; border-top: 1px solid #ddd; color: #777; font-size: 12px; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>New Job Opportunities!</h1>
    <p>Found {{.Count}} new job listing{{if .Plural}}s{{end}} matching your criteria</p>
  </div>
{{range .Postings}}
  <div class="job-card">
    <div class="job-title">{{.Title}}</div>
    <div><span class="company">{{.Company}}</span></div>
    <div><span class="location">{{.Location}}</span></div>
    <span class="source-badge">{{.Source}}</span>
    {{if .URL}}<div><a href="{{.URL}}" class="apply-button">View Job</a></div>{{end}}
  </div>
{{end}}
  <div class="footer">
    <p>This is an automated notification from your job listing monitor</p>
  </div>
</div>
</body>
</html>
`))
