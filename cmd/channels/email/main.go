package main

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/creasty/defaults"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/jhillyerd/enmime"
	"github.com/jobwatch/jobwatch/internal"
	"github.com/jobwatch/jobwatch/pkg/plugin"
)

func main() {
	plugin.RunPlugin(&Email{})
}

// Email is a channel plugin that delivers notifications over SMTP.
//
// The recipient of a subscription may list multiple addresses separated by
// commas.
type Email struct {
	Host       string `json:"host"`
	Port       string `json:"port" default:"25"`
	SenderName string `json:"sender_name" default:"Jobwatch"`
	SenderMail string `json:"sender_mail"`
	User       string `json:"user"`
	Password   string `json:"password"`
	Encryption string `json:"encryption" default:"none"`
}

func (ch *Email) GetInfo() *plugin.Info {
	return &plugin.Info{Name: "Email", Version: internal.Version.Version}
}

func (ch *Email) SetConfig(jsonStr json.RawMessage) error {
	if err := defaults.Set(ch); err != nil {
		return fmt.Errorf("cannot apply config defaults: %w", err)
	}

	if err := json.Unmarshal(jsonStr, ch); err != nil {
		return fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if ch.User != "" && ch.Password == "" {
		return errors.New("password must be provided when user is set")
	}

	switch ch.Encryption {
	case "", "none", "starttls", "tls":
	default:
		return fmt.Errorf("unknown encryption mode %q", ch.Encryption)
	}

	return nil
}

func (ch *Email) SendNotification(req *plugin.NotificationRequest) error {
	var recipients []string
	for _, addr := range strings.Split(req.Subscription.Recipient, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}

	if len(recipients) == 0 {
		return errors.New("subscription has no recipient address")
	}

	var body bytes.Buffer
	plugin.FormatMessage(&body, req)

	builder := enmime.Builder().
		From(ch.SenderName, ch.SenderMail).
		Subject(fmt.Sprintf("[jobwatch] %s: new posting by %s", req.Subscription.Name, req.Posting.Author)).
		Text(body.Bytes())
	for _, rcpt := range recipients {
		builder = builder.To("", rcpt)
	}

	msg, err := builder.Build()
	if err != nil {
		return fmt.Errorf("cannot build mail: %w", err)
	}

	return ch.sendMail(recipients, msg)
}

func (ch *Email) sendMail(recipients []string, msg *enmime.Part) error {
	addr := net.JoinHostPort(ch.Host, ch.Port)

	var (
		client *smtp.Client
		err    error
	)

	switch ch.Encryption {
	case "tls":
		client, err = smtp.DialTLS(addr, &tls.Config{MinVersion: tls.VersionTLS12})
	default:
		client, err = smtp.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("cannot connect to %q: %w", addr, err)
	}
	defer func() { _ = client.Close() }()

	if ch.Encryption == "starttls" {
		if err := client.StartTLS(&tls.Config{MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("cannot start TLS on %q: %w", addr, err)
		}
	}

	if ch.User != "" {
		if err := client.Auth(sasl.NewPlainClient("", ch.User, ch.Password)); err != nil {
			return fmt.Errorf("cannot authenticate as %q: %w", ch.User, err)
		}
	}

	if err := client.Mail(ch.SenderMail, nil); err != nil {
		return fmt.Errorf("cannot set sender: %w", err)
	}

	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("cannot add recipient %q: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return err
	}

	if err := msg.Encode(writer); err != nil {
		_ = writer.Close()
		return fmt.Errorf("cannot write message: %w", err)
	}

	if err := writer.Close(); err != nil {
		return err
	}

	return client.Quit()
}
