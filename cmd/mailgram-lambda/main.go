package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/okibe/mailgram/internal/allowlist"
	"github.com/okibe/mailgram/internal/config"
	"github.com/okibe/mailgram/internal/datasource/imap"
	"github.com/okibe/mailgram/internal/docstore"
	"github.com/okibe/mailgram/internal/intake"
	"github.com/okibe/mailgram/internal/logger"
	"github.com/okibe/mailgram/internal/render"
	"github.com/okibe/mailgram/internal/routing"
	"github.com/okibe/mailgram/internal/settings"
	"github.com/okibe/mailgram/internal/telegram"
)

const configFile = "mailgram.json"

// GitCommit is stamped by the build via -ldflags.
var GitCommit string

func openSettings(cfg config.Config) (settings.Store, error) {
	switch cfg.SettingsBackend {
	case config.BackendDynamoDB:
		return settings.NewDynamoStore(cfg.AWSRegion, cfg.DynamoDBTable)
	default:
		return settings.NewFileStore(cfg.DataDir)
	}
}

// HandleRequest runs a single mailbox check. Scheduled invocations
// replace the long-lived watcher: there is no IDLE connection here,
// every trigger sweeps the unseen window once and exits.
func HandleRequest(ctx context.Context) error {
	log := logger.GetLogger()
	defer log.Sync()

	version := "development"
	if GitCommit != "" {
		version = GitCommit
	}
	log.Infof("mailgram version - %s", version)

	path := configFile
	if v, ok := os.LookupEnv("MAILGRAM_CONFIG"); ok {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	store, err := openSettings(cfg)
	if err != nil {
		return fmt.Errorf("open settings backend: %w", err)
	}

	documents, err := docstore.New(cfg.DocumentsDir)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}

	bot, err := telegram.NewClient(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("create telegram client: %w", err)
	}

	pipeline := intake.NewPipeline(intake.Options{
		Dial: func() (imap.MailClient, error) {
			return imap.GetMailClient(cfg.IMAPAddr, cfg.IMAPUsername, cfg.IMAPPassword)
		},
		Mailbox: cfg.IMAPMailbox,
		ChatID:  cfg.TelegramChatID,
	}, allowlist.New(store), routing.New(store), render.NewRenderer(render.NewChromiumEngine(cfg.RenderEngine)), documents, bot)

	result, err := pipeline.RunCycle(ctx)
	if err != nil {
		return err
	}

	log.Infow("check finished",
		"fetched", result.Fetched,
		"delivered", result.Delivered,
		"degraded", result.Degraded,
		"skipped", result.Skipped,
		"failures", result.Failures)

	if cfg.RetentionHours > 0 {
		retention := time.Duration(cfg.RetentionHours) * time.Hour
		if _, err := documents.Cleanup(retention); err != nil {
			log.Warnw("document sweep failed",
				"error", err)
		}
	}

	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
