package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
)

// SMTPConfig holds everything needed to reach the outbound mail server.
// TLSMode is one of "none", "starttls" or "smtps"; the original setup
// used implicit TLS on port 465 so "smtps" is the usual value.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	AuthType   string
	TLSMode    string
	SkipVerify bool
}

// Addr returns the host:port dial target.
func (c SMTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SMTPMailer sends mail over a per-message SMTP session. No pooling:
// the system sends a handful of messages per run and mail servers drop
// idle connections anyway.
type SMTPMailer struct {
	cfg    SMTPConfig
	logger *log.Logger
}

var _ Mailer = (*SMTPMailer)(nil)

// MailerOption configures an SMTPMailer.
type MailerOption func(*SMTPMailer)

// WithMailerLogger overrides the default logger.
func WithMailerLogger(logger *log.Logger) MailerOption {
	return func(m *SMTPMailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewSMTPMailer creates a mailer for the given server.
func NewSMTPMailer(cfg SMTPConfig, opts ...MailerOption) *SMTPMailer {
	m := &SMTPMailer{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[SMTP] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send delivers one message.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}

	raw, err := buildMessage(m.cfg.From, m.cfg.FromName, msg)
	if err != nil {
		return fmt.Errorf("building message: %w", err)
	}

	client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := m.authenticate(client); err != nil {
		return err
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	for _, to := range msg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("setting recipient %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("starting data transfer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data transfer: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("quitting session: %w", err)
	}
	return nil
}

// Verify dials, authenticates and quits without sending anything.
func (m *SMTPMailer) Verify(ctx context.Context) error {
	client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := m.authenticate(client); err != nil {
		return err
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("quitting session: %w", err)
	}
	m.logger.Printf("smtp connection to %s verified", m.cfg.Addr())
	return nil
}

// connect dials the server honoring the configured TLS mode.
func (m *SMTPMailer) connect(ctx context.Context) (*smtp.Client, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", m.cfg.Addr(), err)
	}

	tlsConfig := &tls.Config{
		ServerName:         m.cfg.Host,
		InsecureSkipVerify: m.cfg.SkipVerify,
	}

	if m.cfg.TLSMode == "smtps" {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("starting smtp session: %w", err)
	}

	if m.cfg.TLSMode == "starttls" {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("starting TLS: %w", err)
		}
	}
	return client, nil
}

// authenticate runs AUTH when credentials are configured.
func (m *SMTPMailer) authenticate(client *smtp.Client) error {
	if m.cfg.Username == "" || m.cfg.Password == "" {
		return nil
	}

	var auth smtp.Auth
	switch m.cfg.AuthType {
	case "login":
		auth = &loginAuth{username: m.cfg.Username, password: m.cfg.Password}
	default:
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp authentication failed: %w", err)
	}
	return nil
}

// loginAuth implements SMTP LOGIN authentication, still the only method
// some providers accept.
type loginAuth struct {
	username, password string
}

func (a *loginAuth) Start(*smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", []byte{}, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		switch string(fromServer) {
		case "Username:":
			return []byte(a.username), nil
		case "Password:":
			return []byte(a.password), nil
		default:
			return nil, fmt.Errorf("unexpected server challenge: %s", fromServer)
		}
	}
	return nil, nil
}
