package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/jobwatch/jobwatch/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmail_SetConfig(t *testing.T) {
	tests := []struct {
		name    string
		jsonMsg string
		want    *Email
		wantErr bool
	}{
		{
			name:    "empty-string",
			jsonMsg: ``,
			wantErr: true,
		},
		{
			name:    "empty-json-obj-use-defaults",
			jsonMsg: `{}`,
			want:    &Email{Port: "25", SenderName: "Jobwatch", Encryption: "none"},
		},
		{
			name:    "sender-mail-null-equals-defaults",
			jsonMsg: `{"sender_mail": null}`,
			want:    &Email{Port: "25", SenderName: "Jobwatch", Encryption: "none"},
		},
		{
			name:    "sender-mail-overwrite",
			jsonMsg: `{"sender_mail": "foo@bar"}`,
			want:    &Email{Port: "25", SenderName: "Jobwatch", SenderMail: "foo@bar", Encryption: "none"},
		},
		{
			name:    "sender-mail-overwrite-empty",
			jsonMsg: `{"sender_mail": ""}`,
			want:    &Email{Port: "25", SenderName: "Jobwatch", SenderMail: "", Encryption: "none"},
		},
		{
			name:    "full-example-config",
			jsonMsg: `{"sender_name":"hiring-bot","sender_mail":"bot@example.com","host":"smtp.example.com","port":"587","user":"bot","password":"hunter2","encryption":"starttls"}`,
			want: &Email{
				Host:       "smtp.example.com",
				Port:       "587",
				SenderName: "hiring-bot",
				SenderMail: "bot@example.com",
				User:       "bot",
				Password:   "hunter2",
				Encryption: "starttls",
			},
		},
		{
			name:    "user-but-missing-pass",
			jsonMsg: `{"user": "foo"}`,
			wantErr: true,
		},
		{
			name:    "unknown-encryption",
			jsonMsg: `{"encryption": "rot13"}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := &Email{}
			err := email.SetConfig(json.RawMessage(tt.jsonMsg))
			assert.Equal(t, tt.wantErr, err != nil, "SetConfig() error = %v, wantErr = %t", err, tt.wantErr)
			if err != nil {
				return
			}

			assert.Equal(t, tt.want, email, "Email differs")
		})
	}
}

type capturedMail struct {
	from  string
	rcpts []string
	data  []byte
}

type captureBackend struct {
	mu    sync.Mutex
	mails []capturedMail
}

func (b *captureBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &captureSession{backend: b}, nil
}

type captureSession struct {
	backend *captureBackend
	mail    capturedMail
}

func (s *captureSession) AuthPlain(_, _ string) error { return nil }

func (s *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	s.mail.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.mail.rcpts = append(s.mail.rcpts, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mail.data = data

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.mails = append(s.backend.mails, s.mail)

	return nil
}

func (s *captureSession) Reset() {}

func (s *captureSession) Logout() error { return nil }

func TestEmail_SendNotification(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	backend := &captureBackend{}
	server := smtp.NewServer(backend)
	server.Domain = "localhost"
	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Close() }()

	host, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)

	email := &Email{}
	require.NoError(t, email.SetConfig(json.RawMessage(
		fmt.Sprintf(`{"host":%q,"port":%q,"sender_mail":"bot@example.com"}`, host, port))))

	err = email.SendNotification(&plugin.NotificationRequest{
		Thread: &plugin.Thread{
			ID:    1000,
			Title: "Ask HN: Who is hiring? (August 2026)",
			URL:   "https://news.ycombinator.com/item?id=1000",
		},
		Posting: &plugin.Posting{
			ID:      1001,
			URL:     "https://news.ycombinator.com/item?id=1001",
			Author:  "acme",
			Tags:    []string{"Go", "Kubernetes"},
			Excerpt: "Acme | Remote | We use Go",
		},
		Subscription: &plugin.Subscription{
			Name:      "go-jobs",
			Filter:    "go AND kubernetes",
			Recipient: "a@example.com, b@example.com",
		},
	})
	require.NoError(t, err)

	require.Len(t, backend.mails, 1)
	mail := backend.mails[0]
	assert.Equal(t, "bot@example.com", mail.from)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, mail.rcpts)
	assert.Contains(t, string(mail.data), "go-jobs")
	assert.Contains(t, string(mail.data), "acme")
}
