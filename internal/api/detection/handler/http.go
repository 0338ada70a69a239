package detectionHandler

import (
	detectionService "VisionProxy/internal/api/detection/service"
	"VisionProxy/internal/middleware"
	"VisionProxy/pkg/utils"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type DetectionHandler struct {
	log              *logrus.Logger
	validator        *validator.Validate
	middleware       middleware.Middleware
	detectionService detectionService.IDetectionService
	utils            utils.IUtils
	timeout          time.Duration
}

// New builds the detection handler. timeout bounds a whole request and should
// exceed the upstream timeout enforced by the service.
func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ds detectionService.IDetectionService,
	utils utils.IUtils,
	timeout time.Duration,
) *DetectionHandler {
	if timeout <= 0 {
		timeout = detectionService.DefaultUpstreamTimeout + 5*time.Second
	}

	return &DetectionHandler{
		detectionService: ds,
		log:              log,
		validator:        validator,
		middleware:       middleware,
		utils:            utils,
		timeout:          timeout,
	}
}

func (h *DetectionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals(clientIPKey, c.IP())
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Use("/analyze/ws", wsMiddleware)
	srv.Get("/analyze/ws", websocket.New(h.handleAnalyzeWebSocket))
	srv.Post("/analyze", h.middleware.NewRateLimiter, h.Analyze)

	srv.Post("/crop", h.middleware.NewRateLimiter, h.Crop)
}
