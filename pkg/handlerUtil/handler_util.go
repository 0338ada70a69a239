package handlerUtil

import (
	"VisionProxy/pkg/log"
	"VisionProxy/pkg/normalizer"
	"VisionProxy/pkg/provider"
	"VisionProxy/pkg/response"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string          `json:"error"`
	Code    string          `json:"code,omitempty"`
	Details *UpstreamDetail `json:"details,omitempty"`
	Raw     *string         `json:"raw,omitempty"`
	TraceID string          `json:"trace_id,omitempty"`
}

type UpstreamDetail struct {
	Provider string `json:"provider"`
	Status   int    `json:"status"`
	Message  string `json:"message"`
}

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// Resolve maps err onto the status code and body the HTTP and WebSocket
// surfaces return. It does not log.
func Resolve(err error) (int, ErrorResponse) {
	if errors.Is(err, provider.ErrMissingCredential) {
		return fiber.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  response.KindConfig,
		}
	}

	var upstreamErr *provider.UpstreamError
	if errors.As(err, &upstreamErr) {
		status := fiber.StatusBadGateway
		if upstreamErr.Timeout() {
			status = fiber.StatusGatewayTimeout
		}
		return status, ErrorResponse{
			Error: upstreamErr.Error(),
			Code:  response.KindUpstream,
			Details: &UpstreamDetail{
				Provider: upstreamErr.Provider,
				Status:   upstreamErr.Status,
				Message:  upstreamErr.Message,
			},
		}
	}

	var formatErr *normalizer.FormatError
	if errors.As(err, &formatErr) {
		raw := formatErr.Raw
		return fiber.StatusBadGateway, ErrorResponse{
			Error: formatErr.Error(),
			Code:  response.KindResponseFormat,
			Raw:   &raw,
		}
	}

	var respErr *response.Error
	if errors.As(err, &respErr) {
		kind := respErr.Kind
		if kind == "" {
			kind = response.KindInternal
		}
		return respErr.Code, ErrorResponse{
			Error: respErr.Error(),
			Code:  kind,
		}
	}

	return fiber.StatusInternalServerError, ErrorResponse{
		Error: "An unexpected error occurred",
		Code:  response.KindInternal,
	}
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	status, body := Resolve(err)

	fields := log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"code":       body.Code,
		"status":     status,
		"path":       path,
		"operation":  operation,
	}

	switch {
	case status >= fiber.StatusInternalServerError && body.Code == response.KindInternal:
		body.TraceID = log.ErrorWithTraceID(h.logger, fields, "Unexpected error")
	case status >= fiber.StatusInternalServerError:
		h.logger.WithFields(fields).Error("Operation failed upstream")
	default:
		h.logger.WithFields(fields).Warn("Operation failed with error response")
	}

	return c.Status(status).JSON(body)
}

func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: "Validation failed: " + err.Error(),
		Code:  response.KindValidation,
	})
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}
