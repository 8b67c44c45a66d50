package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xll-gen/rtd/internal/config"
	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/feed"
	"github.com/xll-gen/rtd/internal/host"
	"github.com/xll-gen/rtd/internal/ir"
	"github.com/xll-gen/rtd/internal/store"
	"github.com/xll-gen/rtd/internal/table"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	EnvFiles []string
	Topics   []int32
	Duration time.Duration // zero runs until interrupted
	Throttle time.Duration // applied only when the flag is set
	Push     string        // update stream path, "-" for stdin

	// IDGenerator overrides the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// RefreshOutput is one refresh in JSON output.
type RefreshOutput struct {
	Refresh   int          `json:"refresh"`
	SessionID string       `json:"session_id"`
	Count     int32        `json:"count"`
	Table     *table.Table `json:"table"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <feed.cue>",
		Short: "Serve a feed to an in-process host",
		Long: `Serve a feed through the RTD server and print every refresh.

An in-process host subscribes the feed's topics (or those given with
--topic), waits for update notifications and pulls each batch, the way a
spreadsheet does. When a database is configured every session, topic
event and delivered batch is journalled.

With --push, values come from a stream of newline-delimited JSON updates
instead of the feed's generators; the feed still declares the topics.

Settings are read from RTD_* environment variables and .env files; flags
override them.

Example:
  rtd run ./feeds/quotes.cue
  rtd run --db ./rtd.db --topic 101 --topic 102 ./feeds/quotes.cue
  rtd run --duration 10s --format json ./feeds/quotes.cue
  tail -f updates.ndjson | rtd run --push - ./feeds/quotes.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (overrides RTD_DB)")
	cmd.Flags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "dotenv files to load (default .env if present)")
	cmd.Flags().Int32SliceVar(&opts.Topics, "topic", nil, "topic key to subscribe (repeatable; default all)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().DurationVar(&opts.Throttle, "throttle", host.DefaultThrottle, "minimum gap between refreshes (overrides RTD_POLL_INTERVAL)")
	cmd.Flags().StringVar(&opts.Push, "push", "", "read topic updates from this file (- for stdin) instead of the feed's generators")

	return cmd
}

func runServer(opts *RunOptions, path string, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.EnvFiles...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	logLevel := cfg.Level()
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	spec, errs, err := loadFeed(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load feed", err)
	}
	if len(errs) > 0 {
		return WrapExitError(ExitCommandError, "invalid feed", errs[0])
	}
	if cfg.ProducerDelay > 0 {
		spec.Delay = cfg.ProducerDelay
	}

	subscriptions, err := selectTopics(spec, opts.Topics)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid topic selection", err)
	}

	engineOpts := []engine.EngineOption{engine.WithLogger(logger)}
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}

	dbPath := cfg.DB
	if cmd.Flags().Changed("db") {
		dbPath = opts.Database
	}
	if dbPath != "" {
		logger.Info("opening journal", "path", dbPath)
		st, err := store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithObserver(store.NewJournal(st, logger)))
	}

	factory := host.NewFactory(engine.ProcessLifecycle(), engineOpts,
		host.WithMaxColumns(cfg.MaxColumns),
		host.WithHeartbeatInterval(cfg.HeartbeatMillis()),
		host.WithBindingLogger(logger),
	)
	var producer engine.Producer = spec.Producer(logger)
	var pushed *engine.FeedProducer
	var pushSource io.Reader
	if opts.Push != "" {
		src, closeSrc, err := openPushSource(opts.Push, cmd)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open push stream", err)
		}
		defer closeSrc()
		pushed = engine.NewFeedProducer(logger)
		pushSource = src
		producer = pushed
	}

	server := factory.CreateInstance(engine.WithProducer(producer))
	defer server.Release()
	sessionID := server.Engine().ID()

	for _, t := range subscriptions {
		var getNewValues bool
		var placeholder ir.Value
		if err := server.ConnectData(t.Key, t.Args, &getNewValues, &placeholder); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to subscribe topic %d", t.Key), err)
		}
	}

	throttle := cfg.PollInterval
	if cmd.Flags().Changed("throttle") {
		throttle = opts.Throttle
	}
	poller := host.NewPoller(server, host.WithThrottle(throttle), host.WithPollerLogger(logger))

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if pushed != nil {
		go func() {
			n, err := pushUpdates(ctx, pushSource, pushed, logger)
			if err != nil {
				logger.Warn("push stream failed", "error", err)
			}
			logger.Info("push stream ended", "updates", n)
		}()
	}

	w := cmd.OutOrStdout()
	jsonOut := opts.Format == "json"
	if !jsonOut {
		fmt.Fprintf(w, "Serving feed %s: %d topic(s), session %s\n", spec.Name, len(subscriptions), sessionID)
		if opts.Duration == 0 {
			fmt.Fprintln(w, "Press Ctrl-C to stop.")
		}
	}

	refreshes := 0
	encoder := json.NewEncoder(w)
	err = poller.Run(ctx, func(count int32, tbl *table.Table) error {
		refreshes++
		if jsonOut {
			return encoder.Encode(RefreshOutput{
				Refresh:   refreshes,
				SessionID: sessionID,
				Count:     count,
				Table:     tbl,
			})
		}
		fmt.Fprintf(w, "refresh %d: %d topic(s)\n", refreshes, count)
		return writeTable(w, tbl)
	})
	if err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}

	logger.Info("server stopped", "refreshes", refreshes, "notifications", poller.Notifies())
	if !jsonOut {
		fmt.Fprintf(w, "Stopped after %d refresh(es)\n", refreshes)
	}
	return nil
}

// selectTopics returns the feed topics to subscribe, in the order given.
// An empty selection means every topic in declaration order.
func selectTopics(spec *feed.Spec, keys []int32) ([]feed.Topic, error) {
	if len(keys) == 0 {
		return spec.Topics, nil
	}
	topics := make([]feed.Topic, 0, len(keys))
	for _, k := range keys {
		t, ok := spec.Topic(k)
		if !ok {
			return nil, fmt.Errorf("topic %d is not declared in feed %s", k, spec.Name)
		}
		topics = append(topics, t)
	}
	return topics, nil
}
