package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jobwatch/jobwatch/internal"
	"github.com/jobwatch/jobwatch/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_SetConfig(t *testing.T) {
	tests := []struct {
		name    string
		jsonMsg string
		wantErr bool
	}{
		{
			name:    "empty-string",
			jsonMsg: ``,
			wantErr: true,
		},
		{
			name:    "missing-url-template",
			jsonMsg: `{}`,
			wantErr: true,
		},
		{
			name:    "minimal",
			jsonMsg: `{"url_template": "https://example.com/hook"}`,
		},
		{
			name:    "header-pair-without-separator",
			jsonMsg: `{"url_template": "https://example.com", "request_headers_template": "X-Token"}`,
			wantErr: true,
		},
		{
			name:    "header-pair-empty-key",
			jsonMsg: `{"url_template": "https://example.com", "request_headers_template": "=secret"}`,
			wantErr: true,
		},
		{
			name:    "invalid-status-code",
			jsonMsg: `{"url_template": "https://example.com", "response_status_codes": "2xx"}`,
			wantErr: true,
		},
		{
			name:    "invalid-body-template",
			jsonMsg: `{"url_template": "https://example.com", "request_body_template": "{{"}`,
			wantErr: true,
		},
		{
			name:    "missing-ca-file",
			jsonMsg: `{"url_template": "https://example.com", "tls_ca_pem_file": "/nonexistent/ca.pem"}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			webhook := &Webhook{}
			err := webhook.SetConfig(json.RawMessage(tt.jsonMsg))
			assert.Equal(t, tt.wantErr, err != nil, "SetConfig() error = %v, wantErr = %t", err, tt.wantErr)
		})
	}
}

func TestWebhook_Defaults(t *testing.T) {
	webhook := &Webhook{}
	require.NoError(t, webhook.SetConfig(json.RawMessage(`{"url_template": "https://example.com/hook"}`)))

	assert.Equal(t, "POST", webhook.Method)
	assert.Equal(t, "{{json .}}", webhook.RequestBodyTemplate)
	assert.Equal(t, []int{200}, webhook.respStatusCodes)
	assert.Empty(t, webhook.tmplRequestHeaders)

	webhook = &Webhook{}
	require.NoError(t, webhook.SetConfig(json.RawMessage(
		`{"url_template": "https://example.com/hook", "response_status_codes": "200, 201,418"}`)))
	assert.Equal(t, []int{200, 201, 418}, webhook.respStatusCodes)
}

func testNotificationRequest() *plugin.NotificationRequest {
	return &plugin.NotificationRequest{
		Posting: &plugin.Posting{
			ID:      43002199,
			URL:     "https://news.ycombinator.com/item?id=43002199",
			Author:  "acme",
			Time:    time.Date(2026, time.August, 3, 15, 30, 0, 0, time.UTC),
			Tags:    []string{"Go", "PostgreSQL"},
			Excerpt: "Acme | Remote | Backend",
			Text:    "Acme | Remote | Backend\nWe use Go and PostgreSQL.",
		},
		Thread: &plugin.Thread{
			ID:    43000000,
			Title: "Ask HN: Who is hiring? (August 2026)",
			URL:   "https://news.ycombinator.com/item?id=43000000",
		},
		Subscription: &plugin.Subscription{
			ID:        7,
			Name:      "go-jobs",
			Filter:    "go AND (remote OR berlin)",
			Recipient: "https://example.com/hook",
		},
	}
}

func TestWebhook_SendNotification(t *testing.T) {
	t.Run("DefaultJSONBody", func(t *testing.T) {
		var (
			gotMethod    string
			gotUserAgent string
			gotBody      plugin.NotificationRequest
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotUserAgent = r.Header.Get("User-Agent")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		}))
		defer srv.Close()

		webhook := &Webhook{}
		require.NoError(t, webhook.SetConfig(json.RawMessage(`{"url_template": "`+srv.URL+`"}`)))
		require.NoError(t, webhook.SendNotification(testNotificationRequest()))

		assert.Equal(t, "POST", gotMethod)
		assert.Equal(t, "jobwatch-webhook/"+internal.Version.Version, gotUserAgent)
		require.NotNil(t, gotBody.Posting)
		assert.Equal(t, int64(43002199), gotBody.Posting.ID)
		assert.Equal(t, []string{"Go", "PostgreSQL"}, gotBody.Posting.Tags)
	})

	t.Run("TemplatedRequest", func(t *testing.T) {
		var (
			gotMethod string
			gotAuth   string
			gotBody   []byte
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotAuth = r.Header.Get("Authorization")
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		config, err := json.Marshal(map[string]string{
			"method":                   "PUT",
			"url_template":             srv.URL + "/postings/{{.Posting.ID}}",
			"request_headers_template": "Authorization=Bearer token-{{.Subscription.ID}}",
			"request_body_template":    "{{.Posting.URL}}",
			"response_status_codes":    "202",
		})
		require.NoError(t, err)

		webhook := &Webhook{}
		require.NoError(t, webhook.SetConfig(config))
		require.NoError(t, webhook.SendNotification(testNotificationRequest()))

		assert.Equal(t, "PUT", gotMethod)
		assert.Equal(t, "Bearer token-7", gotAuth)
		assert.Equal(t, "https://news.ycombinator.com/item?id=43002199", string(gotBody))
	})

	t.Run("UnexpectedStatusCode", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "out of coffee", http.StatusTeapot)
		}))
		defer srv.Close()

		webhook := &Webhook{}
		require.NoError(t, webhook.SetConfig(json.RawMessage(`{"url_template": "`+srv.URL+`"}`)))

		err := webhook.SendNotification(testNotificationRequest())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "418")
	})
}
