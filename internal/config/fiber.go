package config

import (
	"VisionProxy/pkg/handlerUtil"
	"VisionProxy/pkg/response"
	"errors"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func NewFiber(logger *logrus.Logger, cfg *AppConfig) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:           "Vision Proxy",
			BodyLimit:         cfg.BodyLimitMB * 1024 * 1024,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: cfg.Env == "development",
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
			ErrorHandler:      errorHandler(logger),
		})

	return app
}

// errorHandler renders errors fiber raises itself (unknown route, oversized
// body, missing upgrade) in the same JSON shape the handlers use.
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		kind := response.KindInternal

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			if code < fiber.StatusInternalServerError {
				kind = response.KindInvalidInput
			}
		}

		logger.WithFields(logrus.Fields{
			"path":   c.Path(),
			"status": code,
			"error":  err.Error(),
		}).Warn("Request rejected")

		return c.Status(code).JSON(handlerUtil.ErrorResponse{
			Error: err.Error(),
			Code:  kind,
		})
	}
}
