package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/jobwatch/jobwatch/internal"
	"github.com/jobwatch/jobwatch/internal/archive"
	"github.com/jobwatch/jobwatch/internal/filter"
	"github.com/jobwatch/jobwatch/internal/hnclient"
	"github.com/jobwatch/jobwatch/internal/logging"
	"github.com/jobwatch/jobwatch/internal/posting"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// excerptLength is the width of the one-line posting preview.
const excerptLength = 120

type options struct {
	Filter        string        `short:"f" long:"filter" description:"print only postings whose tags match this filter expression"`
	Output        string        `short:"o" long:"output" description:"additionally write the full thread to this archive file, a .zst suffix compresses it"`
	Limit         int           `long:"limit" description:"fetch at most this many postings, 0 fetches all"`
	MaxConcurrent int           `long:"max-concurrent" default:"10" description:"number of parallel Hacker News requests"`
	Delay         time.Duration `long:"delay" default:"100ms" description:"pause between two Hacker News requests"`
	BaseURL       string        `long:"base-url" description:"Hacker News API endpoint" default-mask:"-"`
	LogFile       string        `long:"log-file" description:"write logs to this file instead of the terminal"`
	Verbose       bool          `short:"v" long:"verbose" description:"enable debug logging"`
	Version       bool          `long:"version" description:"print version and exit"`

	Positional struct {
		Thread string `positional-arg-name:"thread" description:"hiring thread URL or item ID, the newest thread is discovered when omitted"`
	} `positional-args:"yes"`
}

func main() {
	opts := options{BaseURL: hnclient.DefaultBaseURL}

	parser := flags.NewParser(&opts, flags.Default^flags.PrintErrors)
	parser.Usage = "[OPTIONS] [thread]"
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, flagsErr)
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if opts.Version {
		internal.Version.Print("Jobwatch")
		return
	}

	level := zap.InfoLevel
	if opts.Verbose {
		level = zap.DebugLevel
	}

	var logs *logging.Logging
	var err error
	if opts.LogFile != "" {
		logs, err = logging.NewLoggingWithFile("jobwatch", level, opts.LogFile)
	} else {
		logs, err = logging.NewLogging("jobwatch", level, logging.CONSOLE, logging.Options{})
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "cannot initialize logging:", err)
		os.Exit(1)
	}

	logger := logs.GetLogger()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, &opts, logs); err != nil {
		logger.Fatalw("Jobwatch failed", zap.Error(err))
	}
}

func run(ctx context.Context, opts *options, logs *logging.Logging) error {
	client := hnclient.NewClient(opts.BaseURL, opts.Delay, logs.GetChildLogger("hnclient"))
	logger := logs.GetLogger()

	var threadItem *hnclient.Item
	var err error
	if opts.Positional.Thread != "" {
		var id int64
		if id, err = hnclient.ResolveThreadID(opts.Positional.Thread); err != nil {
			return err
		}

		threadItem, err = client.Item(ctx, id)
	} else {
		threadItem, err = client.DiscoverHiringThread(ctx)
	}
	if err != nil {
		return err
	}

	logger.Infow("Fetching hiring thread",
		zap.Int64("id", threadItem.ID),
		zap.String("title", threadItem.Title),
		zap.Int("postings", len(threadItem.Kids)))

	items, err := client.FetchKids(ctx, threadItem, opts.Limit, opts.MaxConcurrent)
	if err != nil {
		return err
	}

	thread := posting.NewThread(threadItem.ID, threadItem.Title, threadItem.By, threadItem.Time.Time)
	postings := make([]*posting.Posting, 0, len(items))
	for _, item := range items {
		postings = append(postings, posting.New(item.ID, thread.ID, item.By, item.Time.Time, item.Text))
	}

	matched := postings
	if opts.Filter != "" {
		result := filter.Parse(opts.Filter)
		if !result.Valid {
			logger.Warnw("Filter expression is invalid, matching it as a literal tag",
				zap.String("filter", opts.Filter), zap.String("error", result.ErrorMessage))
		}

		matched = nil
		for _, p := range postings {
			if result.Matches(p.Tags) {
				matched = append(matched, p)
			}
		}
	}

	printPostings(thread, postings, matched, opts.Filter != "")

	if opts.Output != "" {
		if err := archive.New(thread, postings).WriteFile(opts.Output); err != nil {
			return err
		}

		logger.Infow("Wrote thread archive",
			zap.String("path", opts.Output), zap.Int("postings", len(postings)))
	}

	return nil
}

func printPostings(thread *posting.Thread, all, matched []*posting.Posting, filtered bool) {
	if filtered {
		fmt.Printf("%s: %d of %d postings match\n\n", thread.Title, len(matched), len(all))
	} else {
		fmt.Printf("%s: %d postings\n\n", thread.Title, len(all))
	}

	for _, p := range matched {
		fmt.Printf("%s by %s\n", p.URL(), p.Author)
		if len(p.Tags) > 0 {
			fmt.Printf("  tags: %s\n", strings.Join(p.Tags, ", "))
		}
		fmt.Printf("  %s\n\n", p.Excerpt(excerptLength))
	}
}
