package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Submitter accepts new and retried summary requests
type Submitter interface {
	Submit(ctx context.Context, url, userID string) (*types.Summary, error)
	Retry(ctx context.Context, summaryID string) (*types.Summary, error)
}

// SummaryReader reads persisted summaries
type SummaryReader interface {
	GetSummary(ctx context.Context, id string) (*types.Summary, error)
	ListSummaries(ctx context.Context, limit int) ([]types.Summary, error)
	ListSummariesByStatus(ctx context.Context, statuses ...types.Status) ([]types.Summary, error)
}

// SummaryHandler serves the summary submission and read endpoints
type SummaryHandler struct {
	submitter Submitter
	store     SummaryReader
	logger    *zap.Logger
}

// NewSummaryHandler creates a summary handler
func NewSummaryHandler(submitter Submitter, store SummaryReader, logger *zap.Logger) *SummaryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryHandler{
		submitter: submitter,
		store:     store,
		logger:    logger.With(zap.String("component", "http")),
	}
}

// SubmitRequest represents the request body
type SubmitRequest struct {
	URL    string `json:"url"`
	UserID string `json:"user_id"`
}

// Submit handles POST /summaries
func (h *SummaryHandler) Submit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_INVALID_BODY",
		})
	}
	if strings.TrimSpace(req.URL) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL is required",
			"code":  "ERR_NO_URL",
		})
	}

	sum, err := h.submitter.Submit(c.UserContext(), req.URL, req.UserID)
	if err != nil {
		h.logger.Warn("submit failed", zap.String("url", req.URL), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"summary_id": sum.ID,
		"podcast_id": sum.PodcastID,
		"status":     sum.Status,
	})
}

// List handles GET /summaries?limit=&status=
func (h *SummaryHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	var (
		summaries []types.Summary
		err       error
	)
	if raw := c.Query("status"); raw != "" {
		var statuses []types.Status
		for _, part := range strings.Split(raw, ",") {
			status := types.Status(strings.ToUpper(strings.TrimSpace(part)))
			if !status.Valid() {
				return errorResponse(c, &types.ValidationError{Errors: []string{"unknown status " + part}})
			}
			statuses = append(statuses, status)
		}
		summaries, err = h.store.ListSummariesByStatus(c.UserContext(), statuses...)
		if len(summaries) > limit {
			summaries = summaries[:limit]
		}
	} else {
		summaries, err = h.store.ListSummaries(c.UserContext(), limit)
	}
	if err != nil {
		return errorResponse(c, err)
	}
	if summaries == nil {
		summaries = []types.Summary{}
	}

	return c.JSON(fiber.Map{
		"summaries": summaries,
		"count":     len(summaries),
	})
}

// Get handles GET /summaries/:id
func (h *SummaryHandler) Get(c *fiber.Ctx) error {
	sum, err := h.store.GetSummary(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(sum)
}

// Retry handles POST /summaries/:id/retry
func (h *SummaryHandler) Retry(c *fiber.Ctx) error {
	sum, err := h.submitter.Retry(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"summary_id": sum.ID,
		"podcast_id": sum.PodcastID,
		"status":     sum.Status,
	})
}
