package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// errorResponse maps domain errors to a status code and the {"error","code"} body
func errorResponse(c *fiber.Ctx, err error) error {
	status, code := classify(err)
	body := fiber.Map{
		"error": err.Error(),
		"code":  code,
	}
	var validation *types.ValidationError
	if errors.As(err, &validation) {
		body["errors"] = validation.Errors
	}
	if status == fiber.StatusInternalServerError {
		body["error"] = "Internal server error"
	}
	return c.Status(status).JSON(body)
}

func classify(err error) (int, string) {
	var (
		validation *types.ValidationError
		platform   *types.PlatformError
		database   *types.DatabaseError
	)
	switch {
	case errors.As(err, &validation):
		return fiber.StatusBadRequest, "ERR_VALIDATION"
	case errors.As(err, &platform):
		switch platform.Code {
		case types.ErrCodeInvalidURL:
			return fiber.StatusBadRequest, "ERR_INVALID_URL"
		case types.ErrCodeVideoNotFound:
			return fiber.StatusNotFound, "ERR_VIDEO_NOT_FOUND"
		}
		return fiber.StatusBadGateway, "ERR_PLATFORM_API"
	case errors.As(err, &database):
		switch database.Code {
		case types.ErrCodeNotFound:
			return fiber.StatusNotFound, "ERR_NOT_FOUND"
		case types.ErrCodeConflict:
			return fiber.StatusConflict, "ERR_CONFLICT"
		}
	}
	return fiber.StatusInternalServerError, "ERR_INTERNAL"
}
