package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"layoutbot/internal/bot"
	"layoutbot/internal/config"
	"layoutbot/internal/integrations/paramstore"
	"layoutbot/internal/integrations/telegram"
	"layoutbot/internal/repository"
	"layoutbot/internal/retention"
	"layoutbot/internal/usecase"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	store      repository.Store
	telegram   *telegram.Client
	me         *telegram.User
	dispatcher *bot.Dispatcher
	retention  *retention.Manager
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (repository.Store, error) {
	store, err := repository.Open(ctx, cfg.DatabaseURL, repository.Options{
		Logger:  log,
		Horizon: cfg.RetentionHorizon,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func newRetention(cfg config.Config, store repository.Store, log *slog.Logger) (*retention.Manager, error) {
	return retention.NewManager(retention.Config{
		Horizon:           cfg.RetentionHorizon,
		CleanupInterval:   cfg.CleanupInterval,
		SizeCheckInterval: cfg.SizeCheckInterval,
		MaxSizeBytes:      cfg.MaxDBSizeBytes,
		InitialDelay:      cfg.RetentionDelay,
	}, store, log)
}

func tokenSource(ctx context.Context, cfg config.Config, log *slog.Logger) (telegram.TokenSource, error) {
	if cfg.BotToken != "" {
		return telegram.StaticToken(cfg.BotToken), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	return paramstore.NewBotToken(ssmClient, cfg.BotTokenParam, log)
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}
	tokens, err := tokenSource(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	tg, err := telegram.NewClient(tokens, telegram.WithBaseURL(cfg.APIURL))
	if err != nil {
		return nil, err
	}
	me, err := tg.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("identify bot: %w", err)
	}
	log.Info("bot identified", "username", me.Username, "id", me.ID)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{store: store, telegram: tg, me: me}

	svc, err := usecase.NewTranslateService(store, me.Username, log)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	a.dispatcher, err = bot.NewDispatcher(store, svc, tg, me.Username, log)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	a.retention, err = newRetention(cfg, store, log)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return a, nil
}
