package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf16"

	"layoutbot/internal/domain"
	"layoutbot/internal/layout"
	"layoutbot/internal/observability"
)

// FailureReply is sent whenever a command cannot be served.
const FailureReply = "Sorry, an error occurred during translation."

// MaxReplyLength is Telegram's sendMessage limit, counted in UTF-16 code
// units.
const MaxReplyLength = 4096

const (
	groupOriginalPrefix    = "Original: "
	groupTranslationPrefix = "\nTranslation: "
	clippedMark            = "…"

	sourceStored    = "stored"
	sourceRecovered = "recovered"
	sourceArgument  = "argument"

	outcomeTranslated = "translated"
	outcomeHelp       = "help"
	outcomeError      = "error"
)

type MessageStore interface {
	Record(ctx context.Context, msg domain.InboundMessage) (*domain.StoredMessage, error)
	Lookup(ctx context.Context, key domain.MessageKey) (*domain.StoredMessage, bool, error)
	ApplyTranslation(ctx context.Context, key domain.MessageKey, translated string, dir domain.Direction) error
}

type TranslateService struct {
	store       MessageStore
	botUsername string
	log         *slog.Logger
}

func NewTranslateService(store MessageStore, botUsername string, log *slog.Logger) (*TranslateService, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &TranslateService{store: store, botUsername: botUsername, log: log}, nil
}

// source is the text a command resolved to. key is set when the text belongs
// to a stored message that should receive the translation.
type source struct {
	text   string
	origin string
	key    *domain.MessageKey
}

// Handle serves one command and returns the reply text. It never fails:
// faults are logged and answered with FailureReply.
func (s *TranslateService) Handle(ctx context.Context, cmd domain.InboundCommand) string {
	log := s.log.With("command", cmd.Name, "chat_id", cmd.ConversationID, "message_id", cmd.MessageID)

	if cmd.Name == domain.CommandHelp {
		observability.CommandsTotal.WithLabelValues(string(cmd.Name), outcomeHelp).Inc()
		return HelpText(cmd.ConversationKind, s.botUsername)
	}

	reply, outcome, err := s.translate(ctx, log, cmd)
	observability.CommandsTotal.WithLabelValues(string(cmd.Name), outcome).Inc()
	if err != nil {
		var ucErr *Error
		if errors.As(err, &ucErr) {
			log.Error("translation failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
		} else {
			log.Error("translation failed", "err", err)
		}
		return FailureReply
	}
	return reply
}

func (s *TranslateService) translate(ctx context.Context, log *slog.Logger, cmd domain.InboundCommand) (string, string, error) {
	dir := cmd.Name.Direction()
	if dir == domain.DirectionNone {
		return "", outcomeError, newError(ErrorInvalidInput, "unknown_command", fmt.Errorf("command %q", cmd.Name))
	}

	src, err := s.resolve(ctx, log, cmd)
	if err != nil {
		return "", outcomeError, err
	}
	if src.text == "" {
		log.Info("no text to translate, sending help")
		return HelpText(cmd.ConversationKind, s.botUsername), outcomeHelp, nil
	}

	translated := layout.Map(src.text, dir)
	if src.key != nil {
		if err := s.store.ApplyTranslation(ctx, *src.key, translated, dir); err != nil {
			// The user still gets the reply.
			log.Warn("storing translation failed",
				"err", newError(ErrorStoreUnavailable, "apply_translation_error", err))
		}
	}
	log.Info("translated", "source", src.origin, "direction", dir)
	return shapeReply(cmd.ConversationKind, src.text, translated), outcomeTranslated, nil
}

// resolve picks the text to translate: the stored replied-to message, else the
// replied-to message itself (recorded anew), else the inline argument.
func (s *TranslateService) resolve(ctx context.Context, log *slog.Logger, cmd domain.InboundCommand) (source, error) {
	if reply := cmd.RepliedTo; reply != nil {
		key := reply.Key()
		stored, ok, err := s.store.Lookup(ctx, key)
		if err != nil {
			return source{}, newError(ErrorStoreUnavailable, "lookup_error", err)
		}
		if ok && stored.OriginalText != "" {
			return source{text: stored.OriginalText, origin: sourceStored, key: &key}, nil
		}
		if strings.TrimSpace(reply.Text) != "" {
			return s.recoverReply(ctx, log, *reply), nil
		}
	}
	if arg := strings.TrimSpace(cmd.ArgumentText); arg != "" {
		return source{text: arg, origin: sourceArgument}, nil
	}
	return source{}, nil
}

// recoverReply handles a reply to a message the store does not know, e.g. one
// already evicted by retention or sent before the bot joined.
func (s *TranslateService) recoverReply(ctx context.Context, log *slog.Logger, reply domain.InboundMessage) source {
	src := source{text: reply.Text, origin: sourceRecovered}
	stored, err := s.store.Record(ctx, reply)
	if err != nil {
		log.Warn("re-recording replied-to message failed",
			"err", newError(ErrorStoreUnavailable, "record_error", err))
		return src
	}
	if stored != nil {
		key := stored.Key()
		src.key = &key
	}
	return src
}

// shapeReply formats the answer for the conversation kind and keeps it within
// MaxReplyLength. In groups the echoed original is clipped first so the
// translation survives whole.
func shapeReply(kind domain.ConversationKind, original, translated string) string {
	translated = clipUTF16(translated, MaxReplyLength)
	if kind != domain.ConversationGroup {
		return translated
	}
	reply := groupOriginalPrefix + original + groupTranslationPrefix + translated
	if utf16Len(reply) <= MaxReplyLength {
		return reply
	}
	budget := MaxReplyLength - utf16Len(groupOriginalPrefix+clippedMark+groupTranslationPrefix+translated)
	if budget <= 0 {
		return translated
	}
	return groupOriginalPrefix + clipUTF16(original, budget) + clippedMark + groupTranslationPrefix + translated
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// clipUTF16 returns the longest prefix of s that fits in limit UTF-16 code
// units without splitting a rune.
func clipUTF16(s string, limit int) string {
	n := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if n+w > limit {
			return s[:i]
		}
		n += w
	}
	return s
}
