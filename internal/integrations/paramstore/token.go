package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

type tokenPayload struct {
	Token string `json:"token"`
}

// BotToken resolves the Telegram bot token from a single parameter. The
// value may be the bare token or a JSON object {"token": "..."}.
type BotToken struct {
	params Fetcher
	name   string
	log    *slog.Logger
}

func NewBotToken(params Fetcher, name string, log *slog.Logger) (*BotToken, error) {
	if params == nil {
		return nil, errors.New("paramstore: fetcher must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: token parameter name must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &BotToken{params: params, name: name, log: log}, nil
}

func (b *BotToken) Token(ctx context.Context) (string, error) {
	p, err := b.params.Fetch(ctx, b.name)
	if err != nil {
		return "", fmt.Errorf("paramstore: bot token: %w", err)
	}
	if !p.Secure {
		b.log.Warn("bot token parameter is not a SecureString", "parameter", b.name)
	}
	b.log.Debug("bot token resolved", "parameter", b.name, "version", p.Version)
	return parseToken(p.Value)
}

func parseToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("paramstore: token parameter is not valid JSON: %w", err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", errors.New("paramstore: bot token is empty")
	}
	return raw, nil
}
