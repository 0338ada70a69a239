package detection

import (
	"VisionProxy/pkg/response"
	"net/http"
)

var (
	ErrNoImage             = response.NewError(http.StatusBadRequest, response.KindInvalidInput, "no image data provided")
	ErrInvalidImage        = response.NewError(http.StatusBadRequest, response.KindInvalidInput, "image could not be decoded")
	ErrInvalidEncoding     = response.NewError(http.StatusBadRequest, response.KindInvalidInput, "image is not valid base64")
	ErrInvalidFileType     = response.NewError(http.StatusBadRequest, response.KindInvalidInput, "invalid file type, only images are allowed")
	ErrFileTooLarge        = response.NewError(http.StatusRequestEntityTooLarge, response.KindInvalidInput, "file too large")
	ErrInvalidBox          = response.NewError(http.StatusBadRequest, response.KindInvalidInput, "box must be [ymin, xmin, ymax, xmax] covering a non-empty area")
	ErrInvalidRequestBody  = response.NewError(http.StatusBadRequest, response.KindInvalidInput, "request body must be multipart with an image field or JSON with imageBase64")
	ErrInternalServerError = response.NewError(http.StatusInternalServerError, response.KindInternal, "internal server error")
)
