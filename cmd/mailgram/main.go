package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okibe/mailgram/internal/allowlist"
	"github.com/okibe/mailgram/internal/commands"
	"github.com/okibe/mailgram/internal/config"
	"github.com/okibe/mailgram/internal/datasource/imap"
	"github.com/okibe/mailgram/internal/docstore"
	"github.com/okibe/mailgram/internal/health"
	"github.com/okibe/mailgram/internal/intake"
	"github.com/okibe/mailgram/internal/logger"
	"github.com/okibe/mailgram/internal/render"
	"github.com/okibe/mailgram/internal/routing"
	"github.com/okibe/mailgram/internal/settings"
	"github.com/okibe/mailgram/internal/telegram"
)

// GitCommit is stamped by the build via -ldflags.
var GitCommit string

const (
	retentionSweepEvery = time.Hour
	shutdownGrace       = 30 * time.Second
)

func printVersion(log logger.Logger) {
	version := "development"
	if GitCommit != "" {
		version = GitCommit
	}

	log.Infof("mailgram version - %s", version)
}

func openSettings(cfg config.Config) (settings.Store, error) {
	switch cfg.SettingsBackend {
	case config.BackendDynamoDB:
		return settings.NewDynamoStore(cfg.AWSRegion, cfg.DynamoDBTable)
	default:
		return settings.NewFileStore(cfg.DataDir)
	}
}

func main() {
	configPath := flag.String("config", "mailgram.json", "path to the configuration file")
	checkOnce := flag.Bool("check", false, "run a single mailbox check and exit")
	flag.Parse()

	log := logger.GetLogger()
	defer log.Sync()

	printVersion(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalw("could not load configuration",
			"path", *configPath,
			"error", err)
	}

	store, err := openSettings(cfg)
	if err != nil {
		log.Fatalw("could not open settings backend",
			"backend", cfg.SettingsBackend,
			"error", err)
	}

	documents, err := docstore.New(cfg.DocumentsDir)
	if err != nil {
		log.Fatalw("could not open document store",
			"dir", cfg.DocumentsDir,
			"error", err)
	}

	bot, err := telegram.NewClient(cfg.TelegramToken)
	if err != nil {
		log.Fatalw("could not create telegram client",
			"error", err)
	}

	allow := allowlist.New(store)
	routes := routing.New(store)
	renderer := render.NewRenderer(render.NewChromiumEngine(cfg.RenderEngine))

	watcher := imap.NewWatcher(cfg.IMAPAddr, cfg.IMAPUsername, cfg.IMAPPassword, cfg.IMAPMailbox, cfg.ReconnectOnEnd)
	watcherState := func() string { return watcher.State().String() }

	pipeline := intake.NewPipeline(intake.Options{
		Dial: func() (imap.MailClient, error) {
			return imap.GetMailClient(cfg.IMAPAddr, cfg.IMAPUsername, cfg.IMAPPassword)
		},
		Mailbox: cfg.IMAPMailbox,
		ChatID:  cfg.TelegramChatID,
	}, allow, routes, renderer, documents, bot)

	if *checkOnce {
		runSingleCheck(cfg, log, pipeline, documents)
		return
	}

	// one lifetime for every loop, shared with the HTTP surface so a
	// manual check is bounded by the daemon, not by its request
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := commands.NewListener(bot, cfg.TelegramChatID, allow, routes, pipeline, watcherState)
	api := health.NewServer(ctx, pipeline, func() health.WatcherStatus {
		return health.WatcherStatus{
			State:      watcher.State().String(),
			Reconnects: watcher.Reconnects(),
		}
	})

	run(ctx, cancel, cfg, log, watcher, pipeline, documents, listener, api)
}

// runSingleCheck is the manual one-shot mode: sweep the unseen window
// once, sweep expired documents and report.
func runSingleCheck(cfg config.Config, log logger.Logger, pipeline *intake.Pipeline, documents *docstore.Store) {
	result, err := pipeline.RunCycle(context.Background())
	if err != nil {
		log.Fatalw("mail check failed",
			"error", err)
	}

	log.Infow("check finished",
		"fetched", result.Fetched,
		"delivered", result.Delivered,
		"degraded", result.Degraded,
		"skipped", result.Skipped,
		"failures", result.Failures)

	sweepDocuments(log, documents, time.Duration(cfg.RetentionHours)*time.Hour)
}

// run starts every long-lived loop and blocks until a shutdown signal
// arrives. The watcher giving up is deliberately not fatal: command
// handling, manual checks and the HTTP surface keep working, and
// /healthz reports the failure so an orchestrator can restart us.
func run(ctx context.Context, cancel context.CancelFunc, cfg config.Config, log logger.Logger, watcher *imap.Watcher, pipeline *intake.Pipeline, documents *docstore.Store, listener *commands.Listener, api *health.Server) {
	retention := time.Duration(cfg.RetentionHours) * time.Hour

	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Errorw("mailbox watcher stopped",
				"error", err)
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-watcher.Mail():
				if _, err := pipeline.RunCycle(ctx); err != nil {
					log.Errorw("mail check failed",
						"error", err)
				}
				sweepDocuments(log, documents, retention)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(retentionSweepEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepDocuments(log, documents, retention)
			}
		}
	}()

	go func() {
		if err := listener.Run(ctx); err != nil {
			log.Errorw("command listener stopped",
				"error", err)
		}
	}()

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("http surface listening",
			"addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		log.Infow("shutdown signal received")
	case err := <-serverErr:
		log.Errorw("http surface failed",
			"error", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown was not clean",
			"error", err)
	}
}

func sweepDocuments(log logger.Logger, documents *docstore.Store, retention time.Duration) {
	if retention <= 0 {
		return
	}

	removed, err := documents.Cleanup(retention)
	if err != nil {
		log.Warnw("document sweep failed",
			"error", err)
		return
	}

	if removed > 0 {
		log.Infow("swept expired documents",
			"removed", removed)
	}
}
