package detectionHandler

import (
	"VisionProxy/internal/api/detection"
	"VisionProxy/internal/middleware"
	contextPkg "VisionProxy/pkg/context"
	"VisionProxy/pkg/handlerUtil"
	"VisionProxy/pkg/log"
	"VisionProxy/pkg/utils"
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	maxReadTimeout = 60 * time.Second
	clientIPKey    = "client_ip"
)

func (h *DetectionHandler) Analyze(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.timeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing analyze request")

	image, err := h.readImage(ctx, requestID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_image")
	}

	analysis, err := h.detectionService.Analyze(c, image)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "analyze_image")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"provider":   analysis.Provider,
		"objects":    len(analysis.Objects),
	}).Info("Analyze request successful")
	return errHandler.HandleSuccess(ctx, fiber.StatusOK, analysis)
}

func (h *DetectionHandler) Crop(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.timeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing crop request")

	var req detection.CropRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrInvalidRequestBody, ctx.Path(), "parse_request_body")
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	image, err := h.utils.DecodeBase64Image(req.ImageBase64)
	if err != nil {
		return errHandler.Handle(ctx, requestID, uploadError(err), ctx.Path(), "decode_image")
	}

	cropped, err := h.detectionService.Crop(c, image, req.Box, req.Padding)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "crop_image")
	}

	ctx.Set(fiber.HeaderContentType, "image/jpeg")
	return ctx.Status(fiber.StatusOK).Send(cropped)
}

// readImage accepts a multipart "image" field or a JSON body carrying
// imageBase64.
func (h *DetectionHandler) readImage(ctx *fiber.Ctx, requestID string) ([]byte, error) {
	file, err := ctx.FormFile("image")
	if err == nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"file_name":  file.Filename,
			"file_size":  file.Size,
		}).Debug("Processing file upload")

		if err := h.utils.ValidateImageFile(file); err != nil {
			return nil, uploadError(err)
		}

		fileContent, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer fileContent.Close()

		return h.utils.ReadFile(fileContent)
	}

	if len(ctx.Body()) == 0 {
		return nil, detection.ErrNoImage
	}

	var req detection.AnalyzeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return nil, detection.ErrInvalidRequestBody
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, detection.ErrNoImage
	}

	image, err := h.utils.DecodeBase64Image(req.ImageBase64)
	if err != nil {
		return nil, uploadError(err)
	}

	return image, nil
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, utils.ErrNoFile):
		return detection.ErrNoImage
	case errors.Is(err, utils.ErrFileTooLarge):
		return detection.ErrFileTooLarge
	case errors.Is(err, utils.ErrNotAnImage):
		return detection.ErrInvalidFileType
	case errors.Is(err, utils.ErrInvalidBase64):
		return detection.ErrInvalidEncoding
	}
	return err
}

// handleAnalyzeWebSocket analyzes every binary frame as an image. Text frames
// are read as base64. Each frame gets exactly one JSON reply and is charged to
// the client's rate limit like a POST /analyze.
func (h *DetectionHandler) handleAnalyzeWebSocket(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	clientIP, _ := c.Locals(clientIPKey).(string)
	logger := h.log.WithFields(log.Fields{
		"request_id": requestID,
		"ip":         clientIP,
	})

	logger.Info("Analyze WebSocket client connected")
	defer logger.Info("Analyze WebSocket client disconnected")

	c.SetPingHandler(func(data string) error {
		logger.Debug("Received ping, sending pong")
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			logger.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(maxReadTimeout)); err != nil {
			logger.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("Analyze WebSocket error: %v", err)
			} else {
				logger.Info("Analyze WebSocket connection closed")
			}
			break
		}

		var image []byte
		switch messageType {
		case websocket.BinaryMessage:
			image = message
		case websocket.TextMessage:
			image, err = h.utils.DecodeBase64Image(string(message))
		default:
			logger.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		var reply interface{}
		switch {
		case err != nil:
		case !h.middleware.Allow(clientIP):
			err = middleware.ErrTooManyRequests
		default:
			reply, err = h.analyzeFrame(requestID, image)
		}
		if err != nil {
			_, body := handlerUtil.Resolve(uploadError(err))
			logger.WithFields(log.Fields{
				"error": err.Error(),
				"code":  body.Code,
			}).Warn("Error processing analyze frame")
			reply = body
		}

		if err := c.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			logger.Errorf("Error setting write deadline: %v", err)
			break
		}

		if err := c.WriteJSON(reply); err != nil {
			logger.Errorf("Error writing JSON response: %v", err)
			break
		}

		if err := c.SetWriteDeadline(time.Time{}); err != nil {
			logger.Errorf("Error resetting write deadline: %v", err)
			break
		}
	}
}

func (h *DetectionHandler) analyzeFrame(requestID string, image []byte) (interface{}, error) {
	ctx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), requestID), h.timeout)
	defer cancel()

	analysis, err := h.detectionService.Analyze(ctx, image)
	if err != nil {
		return nil, err
	}
	return analysis, nil
}
