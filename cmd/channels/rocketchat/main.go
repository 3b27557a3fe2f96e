package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jobwatch/jobwatch/internal"
	"github.com/jobwatch/jobwatch/pkg/plugin"
)

func main() {
	plugin.RunPlugin(&RocketChat{})
}

// RocketChat posts notifications via the Rocket.Chat REST API. The
// subscription's recipient is the target channel or username, e.g. "#jobs"
// or "@erika".
type RocketChat struct {
	URL    string `json:"url"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

func (ch *RocketChat) GetInfo() *plugin.Info {
	return &plugin.Info{
		Name:    "Rocket.Chat",
		Version: internal.Version.Version,
	}
}

func (ch *RocketChat) SetConfig(jsonStr json.RawMessage) error {
	if err := json.Unmarshal(jsonStr, ch); err != nil {
		return err
	}

	if ch.URL == "" || ch.UserID == "" || ch.Token == "" {
		return errors.New("url, user_id and token must be configured")
	}

	ch.URL = strings.TrimSuffix(ch.URL, "/")

	return nil
}

func (ch *RocketChat) SendNotification(req *plugin.NotificationRequest) error {
	room := strings.TrimSpace(req.Subscription.Recipient)
	if room == "" {
		return fmt.Errorf("subscription %q has no Rocket.Chat channel as recipient", req.Subscription.Name)
	}

	var output bytes.Buffer
	plugin.FormatMessage(&output, req)

	message := struct {
		Channel string `json:"channel"`
		Text    string `json:"text"`
	}{
		Channel: room,
		Text:    output.String(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	request, err := http.NewRequest(http.MethodPost, ch.URL+"/api/v1/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}

	request.Header.Set("X-Auth-Token", ch.Token)
	request.Header.Set("X-User-Id", ch.UserID)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", "jobwatch-rocketchat/"+internal.Version.Version)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("cannot reach the Rocket.Chat server: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return errors.New(resp.Status)
	}

	return nil
}
