// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package mail delivers transactional email over SMTP. When no host is
// configured the package degrades to a no-op sender so development setups
// run without a mail relay.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/samber/oops"
)

// Security selects how the SMTP connection is protected.
const (
	SecurityStartTLS = "starttls"
	SecuritySSL      = "ssl"
	SecurityNone     = "none"
)

// Config holds SMTP settings. An empty Host disables sending.
type Config struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	Security string `koanf:"security"`
}

// Sender delivers the password-reset email.
type Sender interface {
	SendResetCode(ctx context.Context, email, name, code string) error
}

// NewSender builds a Sender from config. Missing host or from address
// yields the no-op sender.
func NewSender(cfg Config, logger *slog.Logger) Sender {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.From = strings.TrimSpace(cfg.From)
	cfg.Security = strings.ToLower(strings.TrimSpace(cfg.Security))
	if cfg.Security == "" {
		cfg.Security = SecurityStartTLS
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	if cfg.Host == "" || cfg.From == "" {
		logger.Warn("mail sending disabled, smtp host or from address missing")
		return &NoopSender{logger: logger}
	}
	logger.Info("mail sender configured",
		"host", cfg.Host, "port", cfg.Port, "security", cfg.Security)
	return &SMTPSender{cfg: cfg, logger: logger}
}

// NoopSender logs instead of sending. Used when SMTP is not configured.
type NoopSender struct {
	logger *slog.Logger
}

// SendResetCode logs the delivery that would have happened.
func (n *NoopSender) SendResetCode(ctx context.Context, email, _, _ string) error {
	n.logger.InfoContext(ctx, "mail disabled, skipping reset code delivery", "to", email)
	return nil
}

// SMTPSender delivers mail through a real SMTP relay.
type SMTPSender struct {
	cfg    Config
	logger *slog.Logger
}

// SendResetCode emails the reset code with its validity window.
func (s *SMTPSender) SendResetCode(ctx context.Context, email, name, code string) error {
	body := fmt.Sprintf(
		"Hello, %s.\n\n"+
			"You requested to recover your password. Use the code below to set a new one:\n\n"+
			"    %s\n\n"+
			"This code is valid for 15 minutes. If you did not request this, ignore this message.\n\n"+
			"The Trailhead Team",
		name, code)
	msg := buildMessage(s.cfg.From, email, "Password Recovery - Trailhead", body)

	var err error
	switch s.cfg.Security {
	case SecuritySSL:
		err = s.sendSSL(email, msg)
	case SecurityNone:
		err = s.sendPlain(email, msg)
	default:
		err = s.sendStartTLS(email, msg)
	}
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "send reset code").
			With("to", email).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "reset code email sent", "to", email)
	return nil
}

func (s *SMTPSender) addr() string {
	return net.JoinHostPort(s.cfg.Host, s.cfg.Port)
}

func (s *SMTPSender) auth() smtp.Auth {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return nil
	}
	return smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
}

func (s *SMTPSender) sendPlain(to string, msg []byte) error {
	return smtp.SendMail(s.addr(), s.auth(), s.cfg.From, []string{to}, msg)
}

func (s *SMTPSender) sendStartTLS(to string, msg []byte) error {
	client, err := smtp.Dial(s.addr())
	if err != nil {
		return err
	}
	defer client.Close()

	// Refuse to continue in plaintext. Falling through here would hand
	// AUTH PLAIN credentials to whatever answered the dial.
	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fmt.Errorf("server %s does not support STARTTLS", s.cfg.Host)
	}
	if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
		return err
	}
	return s.transmit(client, to, msg)
}

func (s *SMTPSender) sendSSL(to string, msg []byte) error {
	conn, err := tls.Dial("tcp", s.addr(), &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	return s.transmit(client, to, msg)
}

func (s *SMTPSender) transmit(client *smtp.Client, to string, msg []byte) error {
	if auth := s.auth(); auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	buf.WriteString("\r\n")
	return buf.Bytes()
}
