package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

const (
	defaultPollInterval      = 500 * time.Millisecond
	defaultMaxStreamDuration = 30 * time.Minute
)

// SummaryGetter reads one summary
type SummaryGetter interface {
	GetSummary(ctx context.Context, id string) (*types.Summary, error)
}

// streamEvent is sent to stream clients. Exactly one field is set.
type streamEvent struct {
	Text   string       `json:"text,omitempty"`
	Status types.Status `json:"status,omitempty"`
	Error  string       `json:"error,omitempty"`
	Done   bool         `json:"done,omitempty"`
}

// StreamHandler follows a summary while it is generated and forwards the
// new text to the client as it is stored.
type StreamHandler struct {
	store        SummaryGetter
	pollInterval time.Duration
	maxDuration  time.Duration
	logger       *zap.Logger
}

// NewStreamHandler creates a stream handler
func NewStreamHandler(store SummaryGetter, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		store:        store,
		pollInterval: defaultPollInterval,
		maxDuration:  defaultMaxStreamDuration,
		logger:       logger.With(zap.String("component", "stream")),
	}
}

// HandleSSE handles GET /summaries/:id/stream as server-sent events
func (h *StreamHandler) HandleSSE(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.store.GetSummary(c.UserContext(), id); err != nil {
		return errorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), h.maxDuration)
		defer cancel()

		err := h.follow(ctx, id, func(ev streamEvent) error {
			if err := writeSSE(w, ev); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil {
			h.logger.Debug("sse stream ended", zap.String("summary_id", id), zap.Error(err))
		}
	}))
	return nil
}

// HandleWebSocket handles GET /ws/summaries/:id with the same events as JSON
// messages
func (h *StreamHandler) HandleWebSocket(c *websocket.Conn) {
	defer c.Close()

	id := c.Params("id")
	ctx, cancel := context.WithTimeout(context.Background(), h.maxDuration)
	defer cancel()

	err := h.follow(ctx, id, func(ev streamEvent) error {
		return c.WriteJSON(ev)
	})
	if err != nil {
		h.logger.Debug("websocket stream ended", zap.String("summary_id", id), zap.Error(err))
	}
}

func writeSSE(w *bufio.Writer, ev streamEvent) error {
	if ev.Done {
		_, err := w.WriteString("data: [DONE]\n\n")
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	switch {
	case ev.Error != "":
		_, err = fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
	case ev.Status != "":
		_, err = fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload)
	default:
		_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	}
	return err
}

// follow polls the summary and emits status changes and text deltas until it
// reaches a terminal status. The stored text only ever grows while
// generating, so each delta is the suffix past what was already sent.
func (h *StreamHandler) follow(ctx context.Context, id string, emit func(streamEvent) error) error {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var (
		sent       int
		lastStatus types.Status
	)
	for {
		sum, err := h.store.GetSummary(ctx, id)
		if err != nil {
			msg := "failed to read summary"
			if errors.Is(err, types.ErrNotFound) {
				msg = "summary not found"
			}
			if emitErr := emit(streamEvent{Error: msg}); emitErr != nil {
				return emitErr
			}
			if emitErr := emit(streamEvent{Done: true}); emitErr != nil {
				return emitErr
			}
			return err
		}

		if sum.Status != lastStatus {
			lastStatus = sum.Status
			if err := emit(streamEvent{Status: sum.Status}); err != nil {
				return err
			}
		}

		switch {
		case len(sum.SummaryText) > sent:
			delta := sum.SummaryText[sent:]
			sent = len(sum.SummaryText)
			if err := emit(streamEvent{Text: delta}); err != nil {
				return err
			}
		case len(sum.SummaryText) < sent:
			// Cleared by a retry.
			sent = len(sum.SummaryText)
		}

		switch sum.Status {
		case types.StatusCompleted:
			return emit(streamEvent{Done: true})
		case types.StatusFailed:
			msg := sum.ErrorMessage
			if msg == "" {
				msg = "summary failed"
			}
			if err := emit(streamEvent{Error: msg}); err != nil {
				return err
			}
			return emit(streamEvent{Done: true})
		}

		select {
		case <-ctx.Done():
			if err := emit(streamEvent{Error: "stream timed out"}); err != nil {
				return err
			}
			if err := emit(streamEvent{Done: true}); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
