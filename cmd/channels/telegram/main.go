package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jobwatch/jobwatch/internal"
	"github.com/jobwatch/jobwatch/pkg/plugin"
)

func main() {
	plugin.RunPlugin(&Telegram{})
}

// Telegram is a channel plugin that posts notifications through a Telegram
// bot. The recipient of a subscription is the numeric ID of the chat the bot
// posts to.
type Telegram struct {
	Token  string      `json:"token"`
	Silent plugin.Bool `json:"silent"`

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func (ch *Telegram) GetInfo() *plugin.Info {
	return &plugin.Info{Name: "Telegram", Version: internal.Version.Version}
}

func (ch *Telegram) SetConfig(jsonStr json.RawMessage) error {
	if err := json.Unmarshal(jsonStr, ch); err != nil {
		return fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if ch.Token == "" {
		return errors.New("token must be provided")
	}

	return nil
}

func (ch *Telegram) SendNotification(req *plugin.NotificationRequest) error {
	recipient := strings.TrimSpace(req.Subscription.Recipient)
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("recipient %q is not a numeric chat ID", req.Subscription.Recipient)
	}

	bot, err := ch.getBot()
	if err != nil {
		return fmt.Errorf("cannot initialize the bot API: %w", err)
	}

	var output bytes.Buffer
	plugin.FormatMessage(&output, req)

	msg := tgbotapi.NewMessage(chatID, output.String())
	msg.DisableNotification = bool(ch.Silent)
	msg.DisableWebPagePreview = true

	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("cannot send the message: %w", err)
	}

	return nil
}

// getBot connects to the bot API on first use. Keeping this out of SetConfig
// lets the plugin start while Telegram is unreachable and retry on the next
// notification.
func (ch *Telegram) getBot() (*tgbotapi.BotAPI, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.bot == nil {
		bot, err := tgbotapi.NewBotAPI(ch.Token)
		if err != nil {
			return nil, err
		}

		ch.bot = bot
	}

	return ch.bot, nil
}
