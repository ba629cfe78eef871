package bot

import (
	"context"
	"fmt"

	"layoutbot/internal/integrations/telegram"
	"layoutbot/internal/usecase"
)

type CommandSetter interface {
	SetMyCommands(ctx context.Context, commands []telegram.BotCommand) error
}

// RegisterCommands publishes the command menu shown by Telegram clients.
func RegisterCommands(ctx context.Context, setter CommandSetter) error {
	descs := usecase.CommandDescriptions()
	commands := make([]telegram.BotCommand, 0, len(descs))
	for _, d := range descs {
		commands = append(commands, telegram.BotCommand{Command: d[0], Description: d[1]})
	}
	if err := setter.SetMyCommands(ctx, commands); err != nil {
		return fmt.Errorf("bot: register commands: %w", err)
	}
	return nil
}
