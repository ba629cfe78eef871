// Package handler is the AWS Lambda entry point. One function serves both
// Telegram webhook calls routed through API Gateway and the scheduled
// retention event.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"layoutbot/internal/bot"
	"layoutbot/internal/integrations/telegram"
)

const (
	secretHeader    = "X-Telegram-Bot-Api-Secret-Token"
	requestIDHeader = "X-Request-Id"
	scheduledDetail = "Scheduled Event"
)

type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

type Cleaner interface {
	RunAge(ctx context.Context) (int64, error)
	RunSize(ctx context.Context) (bool, error)
}

type Handler struct {
	updates UpdateHandler
	cleaner Cleaner
	secret  string
	log     *slog.Logger
}

// NewHandler wires the webhook and schedule paths. An empty secret disables
// the webhook secret check.
func NewHandler(updates UpdateHandler, cleaner Cleaner, secret string, log *slog.Logger) (*Handler, error) {
	if updates == nil {
		return nil, errors.New("handler: update handler must not be nil")
	}
	if cleaner == nil {
		return nil, errors.New("handler: cleaner must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{updates: updates, cleaner: cleaner, secret: secret, log: log}, nil
}

// eventProbe holds the fields that tell the supported payloads apart.
type eventProbe struct {
	Version    string `json:"version"`
	Source     string `json:"source"`
	DetailType string `json:"detail-type"`
	HTTPMethod string `json:"httpMethod"`
	RawPath    string `json:"rawPath"`
}

// webhookRequest is the part of an API Gateway request the webhook needs.
type webhookRequest struct {
	method          string
	headers         map[string]string
	body            string
	isBase64Encoded bool
	requestID       string
}

func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (Response, error) {
	var probe eventProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		h.log.Warn("undecodable event", "err", err)
		return jsonResponse(http.StatusBadRequest, `{"error":"invalid event"}`), nil
	}

	switch {
	case probe.DetailType == scheduledDetail || probe.Source == "aws.events":
		var ev events.CloudWatchEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return jsonResponse(http.StatusBadRequest, `{"error":"invalid scheduled event"}`), nil
		}
		return h.handleScheduled(ctx, ev), nil
	case probe.HTTPMethod != "":
		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return jsonResponse(http.StatusBadRequest, `{"error":"invalid request"}`), nil
		}
		return h.handleWebhook(ctx, webhookRequest{
			method:          req.HTTPMethod,
			headers:         req.Headers,
			body:            req.Body,
			isBase64Encoded: req.IsBase64Encoded,
			requestID:       req.RequestContext.RequestID,
		}), nil
	case probe.Version == "2.0" && probe.RawPath != "":
		var req events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return jsonResponse(http.StatusBadRequest, `{"error":"invalid request"}`), nil
		}
		return h.handleWebhook(ctx, webhookRequest{
			method:          req.RequestContext.HTTP.Method,
			headers:         req.Headers,
			body:            req.Body,
			isBase64Encoded: req.IsBase64Encoded,
			requestID:       req.RequestContext.RequestID,
		}), nil
	}

	h.log.Warn("unsupported event", "source", probe.Source, "detail_type", probe.DetailType)
	return jsonResponse(http.StatusBadRequest, `{"error":"unsupported event"}`), nil
}

func (h *Handler) handleWebhook(ctx context.Context, req webhookRequest) Response {
	correlationID := header(req.headers, requestIDHeader)
	if correlationID == "" {
		correlationID = req.requestID
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = bot.WithCorrelationID(ctx, correlationID)
	log := h.log.With("correlation_id", correlationID)

	if req.method != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, `{"error":"method not allowed"}`)
	}
	if h.secret != "" {
		got := header(req.headers, secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			log.Warn("webhook secret mismatch")
			return jsonResponse(http.StatusUnauthorized, `{"error":"unauthorized"}`)
		}
	}

	body := req.body
	if req.isBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return jsonResponse(http.StatusBadRequest, `{"error":"invalid body encoding"}`)
		}
		body = string(decoded)
	}

	var u telegram.Update
	if err := json.Unmarshal([]byte(body), &u); err != nil {
		log.Warn("invalid update payload", "err", err)
		return jsonResponse(http.StatusBadRequest, `{"error":"invalid update"}`)
	}

	// Telegram redelivers on non-2xx, so processing errors still answer 200.
	if err := h.updates.HandleUpdate(ctx, u); err != nil {
		log.Error("handle update failed", "update_id", u.UpdateID, "err", err)
	}
	return jsonResponse(http.StatusOK, `{"ok":true}`)
}

type cleanupResult struct {
	Deleted       int64 `json:"deleted"`
	SizeTriggered bool  `json:"sizeTriggered"`
}

func (h *Handler) handleScheduled(ctx context.Context, ev events.CloudWatchEvent) Response {
	log := h.log.With("event_id", ev.ID)
	var (
		res    cleanupResult
		failed bool
	)
	deleted, err := h.cleaner.RunAge(ctx)
	if err != nil {
		log.Error("scheduled cleanup failed", "err", err)
		failed = true
	}
	res.Deleted = deleted
	triggered, err := h.cleaner.RunSize(ctx)
	if err != nil {
		log.Error("scheduled size check failed", "err", err)
		failed = true
	}
	res.SizeTriggered = triggered

	buf, _ := json.Marshal(res)
	if failed {
		return jsonResponse(http.StatusInternalServerError, string(buf))
	}
	log.Info("scheduled retention done", "deleted", res.Deleted, "size_triggered", res.SizeTriggered)
	return jsonResponse(http.StatusOK, string(buf))
}

// header looks name up case-insensitively; API Gateway keeps client casing.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func jsonResponse(status int, body string) Response {
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       body,
	}
}
