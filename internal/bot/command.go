package bot

import (
	"strings"
	"unicode"

	"layoutbot/internal/domain"
	"layoutbot/internal/integrations/telegram"
	"layoutbot/internal/usecase"
)

// Command is a parsed "/name@bot args" message.
type Command struct {
	Name    string
	Mention string
	Args    string
}

// ParseCommand extracts a leading bot command from text. ok is false when
// text is not a command or the command is addressed to a different bot.
func ParseCommand(text string, entities []telegram.MessageEntity, botUsername string) (Command, bool) {
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}

	end := strings.IndexFunc(text, unicode.IsSpace)
	if end < 0 {
		end = len(text)
	}
	for _, e := range entities {
		// Commands are ASCII, so UTF-16 units equal bytes here.
		if e.Type == telegram.EntityBotCommand && e.Offset == 0 && e.Length > 1 && e.Length <= len(text) {
			end = e.Length
			break
		}
	}

	token := text[1:end]
	cmd := Command{Args: strings.TrimLeftFunc(text[end:], unicode.IsSpace)}
	if name, mention, found := strings.Cut(token, "@"); found {
		cmd.Name, cmd.Mention = name, mention
	} else {
		cmd.Name = token
	}
	if cmd.Name == "" {
		return Command{}, false
	}
	if cmd.Mention != "" && !strings.EqualFold(cmd.Mention, strings.TrimPrefix(botUsername, "@")) {
		return Command{}, false
	}
	cmd.Name = strings.ToLower(cmd.Name)
	return cmd, true
}

// commandName maps a chat spelling to the command it invokes.
func commandName(name string) (domain.CommandName, bool) {
	switch name {
	case usecase.CommandToTarget:
		return domain.CommandToTarget, true
	case usecase.CommandToSource:
		return domain.CommandToSource, true
	case usecase.CommandHelp, usecase.CommandStart:
		return domain.CommandHelp, true
	}
	return "", false
}
