package usecase

import (
	"fmt"
	"strings"

	"layoutbot/internal/domain"
)

// Chat spellings of the commands.
const (
	CommandToTarget = "translateua"
	CommandToSource = "translateen"
	CommandHelp     = "help"
	CommandStart    = "start"
)

const placeholderBotName = "BotUsername"

const privateHelp = "To translate text, use one of these methods:\n\n" +
	"1. Send text and reply with command:\n" +
	"   - Reply with /" + CommandToTarget + " for EN->UA\n" +
	"   - Reply with /" + CommandToSource + " for UA->EN\n\n" +
	"2. Send command with text:\n" +
	"   - /" + CommandToTarget + " your_text\n" +
	"   - /" + CommandToSource + " your_text"

// HelpText returns the usage message for the conversation kind. Group chats
// need the @bot suffix so the command reaches this bot.
func HelpText(kind domain.ConversationKind, botUsername string) string {
	if kind != domain.ConversationGroup {
		return privateHelp
	}
	name := strings.TrimPrefix(strings.TrimSpace(botUsername), "@")
	if name == "" {
		name = placeholderBotName
	}
	ua := fmt.Sprintf("/%s@%s", CommandToTarget, name)
	en := fmt.Sprintf("/%s@%s", CommandToSource, name)
	return "To translate text in group chat:\n\n" +
		"1. Reply to message with command:\n" +
		"   - " + ua + "\n" +
		"   - " + en + "\n\n" +
		"2. Send command with text:\n" +
		"   - " + ua + " text\n" +
		"   - " + en + " text"
}

// CommandDescriptions is the bot menu, in display order.
func CommandDescriptions() [][2]string {
	return [][2]string{
		{CommandToTarget, "Translate from English layout"},
		{CommandToSource, "Translate from Ukrainian layout"},
		{CommandHelp, "Show help"},
	}
}
