package api

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"rulemaker-backend/internal/chat"
	"rulemaker-backend/internal/collab"
	"rulemaker-backend/internal/store"
)

// AppError is the API's uniform error shape. Status picks the HTTP code and
// stays out of the body.
type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func BadRequestError(msg string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Status: 400, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

func UpstreamError(svcErr *collab.ServiceError) *AppError {
	return &AppError{Code: "UPSTREAM_FAILED", Status: 502, Message: svcErr.Error()}
}

// mapWorkflowError converts chat and collaborator errors into AppErrors so
// every handler returns the same taxonomy.
func mapWorkflowError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, chat.ErrNoCredentials),
		errors.Is(err, chat.ErrEmptyCondition),
		errors.Is(err, chat.ErrNoGroup),
		errors.Is(err, chat.ErrNoArmedRule),
		errors.Is(err, chat.ErrNegotiationIncomplete):
		return BadRequestError(err.Error())
	case errors.Is(err, chat.ErrNegotiationSaved):
		return ConflictError(err.Error())
	case errors.Is(err, chat.ErrUnknownProposal),
		errors.Is(err, chat.ErrUnknownNegotiation):
		return NewAppError("NOT_FOUND", 404, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return NewAppError("NOT_FOUND", 404, "session not found")
	}
	var svcErr *collab.ServiceError
	if errors.As(err, &svcErr) {
		return UpstreamError(svcErr)
	}
	return err
}

// ErrorHandler is the fiber error handler: AppErrors keep their status and
// shape, fiber errors keep their code, everything else is a logged 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(ErrorResponse{
		Error: &AppError{Code: "INTERNAL", Status: code, Message: "Internal server error"},
	})
}
