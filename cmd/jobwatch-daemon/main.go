package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jobwatch/jobwatch/internal"
	"github.com/jobwatch/jobwatch/internal/channel"
	"github.com/jobwatch/jobwatch/internal/daemon"
	"github.com/jobwatch/jobwatch/internal/hnclient"
	"github.com/jobwatch/jobwatch/internal/listener"
	"github.com/jobwatch/jobwatch/internal/logging"
	"github.com/jobwatch/jobwatch/internal/schedule"
	"github.com/jobwatch/jobwatch/internal/store"
	"github.com/jobwatch/jobwatch/internal/subscription"
	"github.com/jobwatch/jobwatch/internal/syncer"
	"github.com/okzk/sdnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// subscriptionReloadInterval is how often the in-memory subscription view is
// refreshed from the database, picking up rows changed outside the API.
const subscriptionReloadInterval = time.Minute

func main() {
	conf := daemon.ParseFlagsAndConfig()

	logs, err := logging.NewLogging("jobwatch-daemon", conf.Logging.Level, conf.Logging.Output, conf.Logging.Options)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "cannot initialize logging:", err)
		os.Exit(daemon.ExitFailure)
	}

	logger := logs.GetLogger()
	defer func() { _ = logger.Sync() }()

	logger.Infof("Starting jobwatch daemon (%s)", internal.Version.Version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(conf.DatabasePath, logs.GetChildLogger("store"))
	if err != nil {
		logger.Fatalw("Cannot open the database", zap.String("path", conf.DatabasePath), zap.Error(err))
	}
	defer st.Close()

	subs := subscription.NewRuntime(st, logs.GetChildLogger("subscription"))
	if err := subs.Load(ctx); err != nil {
		logger.Fatalw("Cannot load subscriptions from the database", zap.Error(err))
	}
	go subs.PeriodicUpdates(ctx, subscriptionReloadInterval)

	channels := make(map[string]syncer.Notifier, len(conf.Channels))
	for cType, cConfig := range conf.Channels {
		configJSON, err := json.Marshal(cConfig)
		if err != nil {
			logger.Fatalw("Cannot encode channel config", zap.String("type", cType), zap.Error(err))
		}

		ch := channel.NewChannel(conf.ChannelsDir, cType, string(configJSON))
		ch.Start(ctx, logs.GetChildLogger("channel"))
		defer ch.Stop()

		channels[cType] = ch
	}

	var sched *schedule.Schedule
	if conf.Sync.Thread == "" {
		sched = schedule.New(conf.Sync.RRule, conf.Sync.Timezone)
		if err := sched.Init(); err != nil {
			logger.Fatalw("Cannot parse the thread discovery schedule", zap.Error(err))
		}
	}

	client := hnclient.NewClient(conf.Sync.BaseURL, conf.Sync.Delay, logs.GetChildLogger("hnclient"))
	sync := syncer.NewSyncer(client, st, subs, channels, sched, syncer.Options{
		Thread:        conf.Sync.Thread,
		Limit:         conf.Sync.Limit,
		MaxConcurrent: conf.Sync.MaxConcurrent,
	}, logs.GetChildLogger("syncer"))

	apiListener, err := listener.NewListener(conf.Listen, st, subs, sync, logs.GetChildLogger("listener"))
	if err != nil {
		logger.Fatalw("Cannot initialize the listener", zap.Error(err))
	}

	// When started by systemd, notify it that the daemon is ready.
	_ = sdnotify.Ready()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return sync.PeriodicSync(groupCtx, conf.Sync.Interval) })
	group.Go(func() error { return apiListener.Run(groupCtx) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalw("Daemon finished with an error", zap.Error(err))
	}

	logger.Info("Shutting down")
}
