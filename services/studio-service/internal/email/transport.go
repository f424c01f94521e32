package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inkform/inkform/services/studio-service/internal/model"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport delivers one message and returns its Message-ID.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Dialer builds the transport for a studio's SMTP settings.
type Dialer interface {
	Transport(settings model.SMTPSettings) (Transport, error)
}

type SMTPDialer struct {
	Timeout time.Duration
}

func (d SMTPDialer) Transport(s model.SMTPSettings) (Transport, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("smtp host/port not configured")
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	from := strings.TrimSpace(s.From)
	if from == "" {
		from = s.User
	}
	return &SMTPTransport{settings: s, from: from, timeout: timeout}, nil
}

// SMTPTransport speaks implicit TLS on port 465 and upgrades with STARTTLS
// elsewhere when the server offers it.
type SMTPTransport struct {
	settings model.SMTPSettings
	from     string
	timeout  time.Duration
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	host := t.settings.Host
	addr := net.JoinHostPort(host, strconv.Itoa(t.settings.Port))
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if t.settings.Port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: host})
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return "", err
	}
	defer c.Close()

	if t.settings.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return "", err
			}
		}
	}
	if t.settings.User != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", t.settings.User, t.settings.Password, host)); err != nil {
				return "", err
			}
		}
	}

	id := messageID(t.from)
	if err := c.Mail(t.from); err != nil {
		return "", err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return "", err
	}
	w, err := c.Data()
	if err != nil {
		return "", err
	}
	if _, err := w.Write(buildMessage(t.from, id, msg)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return id, c.Quit()
}

func messageID(from string) string {
	domain := "inkform.local"
	if at := strings.LastIndexByte(from, '@'); at >= 0 && at < len(from)-1 {
		domain = strings.Trim(from[at+1:], "> ")
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

// headerValue keeps studio and client supplied text on a single header line.
func headerValue(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

func buildMessage(from, id string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerValue(from))
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(msg.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue(msg.Subject)))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", headerValue(id))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.HTML, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
