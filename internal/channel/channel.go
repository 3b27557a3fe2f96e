// Package channel runs the notification channel plugins and routes
// notifications to them.
package channel

import (
	"context"
	"errors"

	"github.com/jobwatch/jobwatch/internal/logging"
	"github.com/jobwatch/jobwatch/internal/posting"
	"github.com/jobwatch/jobwatch/internal/subscription"
	"github.com/jobwatch/jobwatch/pkg/plugin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Channel is one configured notification channel backed by a plugin process.
// The plugin is restarted when it crashes and when the config changes.
type Channel struct {
	Type   string
	Config string `json:"-"` // may contain credentials

	Logger *logging.Logger

	dir string

	restartCh chan string
	pluginCh  chan *Plugin

	pluginCtx       context.Context
	pluginCtxCancel func()
}

// NewChannel creates a Channel whose plugin executable lives in dir. The
// config is the JSON object handed to the plugin via SetConfig.
func NewChannel(dir, cType, config string) *Channel {
	return &Channel{Type: cType, Config: config, dir: dir}
}

// MarshalLogObject implements the zapcore.ObjectMarshaler interface.
func (c *Channel) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddString("type", c.Type)
	return nil
}

// Start launches the plugin in the background and keeps it running until the
// context is done or Stop is called.
func (c *Channel) Start(ctx context.Context, logger *logging.Logger) {
	c.Logger = logging.NewLogger(logger.With(zap.Object("channel", c)))
	c.restartCh = make(chan string)
	c.pluginCh = make(chan *Plugin)
	c.pluginCtx, c.pluginCtxCancel = context.WithCancel(ctx)

	go c.runPlugin(c.Config)
}

// initPlugin returns a configured Plugin or nil when starting one failed.
func (c *Channel) initPlugin(config string) *Plugin {
	c.Logger.Debug("Initializing channel plugin")

	p, err := NewPlugin(c.dir, c.Type, c.Logger)
	if err != nil {
		c.Logger.Errorw("Cannot start channel plugin", zap.Error(err))
		return nil
	}

	info, err := p.GetInfo()
	if err != nil {
		c.Logger.Errorw("Cannot query channel plugin info, terminating it", zap.Error(err))
		p.Stop()
		return nil
	}

	if err := p.SetConfig(config); err != nil {
		c.Logger.Errorw("Cannot configure channel plugin, terminating it", zap.Error(err))
		p.Stop()
		return nil
	}

	c.Logger.Infow("Started channel plugin",
		zap.Int("pid", p.Pid()), zap.String("name", info.Name), zap.String("version", info.Version))

	return p
}

// runPlugin maintains the plugin process: it hands the current instance to
// getPlugin, restarts crashed plugins and applies config changes.
func (c *Channel) runPlugin(initConfig string) {
	var current *Plugin
	config := initConfig

	stopIfRunning := func() (int, bool) {
		if current != nil {
			pid := current.Pid()
			current.Stop()
			current = nil
			return pid, true
		}

		return 0, false
	}

	rpcDone := func() <-chan struct{} {
		if current != nil {
			return current.rpc.Done()
		}

		return nil
	}

	for {
		if current == nil {
			current = c.initPlugin(config)
		}

		select {
		case <-rpcDone():
			if pid, stopped := stopIfRunning(); stopped {
				c.Logger.Warnw("Channel plugin exited unexpectedly", zap.Int("pid", pid))
			}

			continue
		case config = <-c.restartCh:
			stopIfRunning()

			continue
		case <-c.pluginCtx.Done():
			if pid, stopped := stopIfRunning(); stopped {
				c.Logger.Infow("Stopped channel plugin", zap.Int("pid", pid))
			}

			return
		case c.pluginCh <- current:
		}
	}
}

// getPlugin returns a fully initialized plugin for sending notifications, or
// nil when there currently is none, for example because starting it failed.
func (c *Channel) getPlugin() *Plugin {
	select {
	case p := <-c.pluginCh:
		if p != nil {
			return p
		}
	case <-c.pluginCtx.Done():
		return nil
	}

	// The receive above might have woken runPlugin after the select was
	// blocked for a long time. A second receive gives it another chance to
	// start the plugin.
	select {
	case p := <-c.pluginCh:
		return p
	case <-c.pluginCtx.Done():
		return nil
	}
}

// Stop ends the lifecycle of the plugin. The Channel cannot be started again.
func (c *Channel) Stop() {
	c.pluginCtxCancel()
}

// Restart replaces the plugin config and restarts the plugin process.
func (c *Channel) Restart(config string) {
	c.Config = config
	c.Logger.Info("Restarting channel plugin due to a config change")
	c.restartCh <- config
}

// Notify delivers the posting to the subscription's recipient through the
// plugin.
func (c *Channel) Notify(sub *subscription.Active, thread *posting.Thread, p *posting.Posting) error {
	pl := c.getPlugin()
	if pl == nil {
		return errors.New("channel plugin could not be started")
	}

	req := &plugin.NotificationRequest{
		Posting: &plugin.Posting{
			ID:      p.ID,
			URL:     p.URL(),
			Author:  p.Author,
			Time:    p.Time.Time(),
			Tags:    p.Tags,
			Excerpt: p.Excerpt(300),
			Text:    posting.PlainText(p.Text),
		},
		Thread: &plugin.Thread{
			ID:    thread.ID,
			Title: thread.Title,
			URL:   thread.URL(),
		},
		Subscription: &plugin.Subscription{
			ID:        sub.ID,
			Name:      sub.Name,
			Filter:    sub.Filter,
			Recipient: sub.Recipient,
		},
	}

	return pl.SendNotification(req)
}
