package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"layoutbot/internal/domain"
	"layoutbot/internal/integrations/telegram"
	"layoutbot/internal/observability"
)

type Recorder interface {
	Record(ctx context.Context, msg domain.InboundMessage) (*domain.StoredMessage, error)
}

type Translator interface {
	Handle(ctx context.Context, cmd domain.InboundCommand) string
}

type Replier interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
}

type correlationKey struct{}

// WithCorrelationID tags ctx so every log line of one update shares an id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id stored in ctx, or a fresh one.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Dispatcher routes one Telegram update at a time: plain text is recorded,
// known commands are translated and answered.
type Dispatcher struct {
	recorder    Recorder
	translator  Translator
	replier     Replier
	botUsername string
	log         *slog.Logger
}

func NewDispatcher(recorder Recorder, translator Translator, replier Replier, botUsername string, log *slog.Logger) (*Dispatcher, error) {
	if recorder == nil {
		return nil, errors.New("bot: recorder must not be nil")
	}
	if translator == nil {
		return nil, errors.New("bot: translator must not be nil")
	}
	if replier == nil {
		return nil, errors.New("bot: replier must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		recorder:    recorder,
		translator:  translator,
		replier:     replier,
		botUsername: botUsername,
		log:         log,
	}, nil
}

func (d *Dispatcher) HandleUpdate(ctx context.Context, u telegram.Update) error {
	msg := u.Message
	if msg == nil || msg.Text == "" {
		observability.UpdatesTotal.WithLabelValues("ignored").Inc()
		return nil
	}
	log := d.log.With("correlation_id", CorrelationID(ctx), "update_id", u.UpdateID,
		"chat_id", msg.Chat.ID, "message_id", msg.MessageID)

	if strings.HasPrefix(msg.Text, "/") {
		return d.handleCommand(ctx, log, msg)
	}

	observability.UpdatesTotal.WithLabelValues("text").Inc()
	stored, err := d.recorder.Record(ctx, toInbound(msg))
	if err != nil {
		return fmt.Errorf("bot: record message: %w", err)
	}
	if stored != nil {
		observability.MessagesRecordedTotal.Inc()
		log.Debug("message recorded")
	}
	return nil
}

func (d *Dispatcher) handleCommand(ctx context.Context, log *slog.Logger, msg *telegram.Message) error {
	parsed, ok := ParseCommand(msg.Text, msg.Entities, d.botUsername)
	if !ok {
		observability.UpdatesTotal.WithLabelValues("ignored").Inc()
		return nil
	}
	name, known := commandName(parsed.Name)
	if !known {
		log.Debug("unknown command", "command", parsed.Name)
		observability.UpdatesTotal.WithLabelValues("ignored").Inc()
		return nil
	}
	observability.UpdatesTotal.WithLabelValues("command").Inc()

	cmd := domain.InboundCommand{
		Name:             name,
		MessageID:        msg.MessageID,
		ConversationID:   msg.Chat.ID,
		ConversationKind: conversationKind(msg.Chat),
		ArgumentText:     parsed.Args,
	}
	if msg.ReplyToMessage != nil {
		replied := toInbound(msg.ReplyToMessage)
		cmd.RepliedTo = &replied
	}

	reply := d.translator.Handle(ctx, cmd)
	if _, err := d.replier.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:           msg.Chat.ID,
		Text:             reply,
		ReplyToMessageID: msg.MessageID,
	}); err != nil {
		return fmt.Errorf("bot: send reply: %w", err)
	}
	log.Info("command answered", "command", name)
	return nil
}

func conversationKind(c telegram.Chat) domain.ConversationKind {
	if c.IsPrivate() {
		return domain.ConversationDirect
	}
	return domain.ConversationGroup
}

func toInbound(m *telegram.Message) domain.InboundMessage {
	in := domain.InboundMessage{
		MessageID:      m.MessageID,
		ConversationID: m.Chat.ID,
		Text:           m.Text,
	}
	if m.From != nil {
		in.SenderID = m.From.ID
		in.SenderName = m.From.DisplayName()
		in.SenderIsAutomated = m.From.IsBot
	}
	if m.ReplyToMessage != nil {
		in.RepliedToMessageID = m.ReplyToMessage.MessageID
	}
	return in
}
