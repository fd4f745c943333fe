package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/diegors10/projetoAPIs/cmd/server/internal/apperr"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/plate"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/trocr"
	"github.com/diegors10/projetoAPIs/pkg/metrics"
)

const (
	msgNotAnImage    = "O arquivo enviado não é uma imagem."
	msgInvalidImage  = "Imagem inválida ou corrompida."
	msgPlateNotFound = "Nenhuma placa reconhecida."
	msgTrOCRFailed   = "Erro ao processar a imagem."
)

// PlateHandler serves both OCR routes.
type PlateHandler struct {
	plates   *plate.Recognizer
	trocr    trocr.Recognizer
	maxBytes int64
}

// NewPlateHandler creates a PlateHandler; images larger than maxBytes are rejected.
func NewPlateHandler(plates *plate.Recognizer, tr trocr.Recognizer, maxBytes int64) *PlateHandler {
	return &PlateHandler{plates: plates, trocr: tr, maxBytes: maxBytes}
}

// readImageUpload returns the bytes of the multipart "file" field once it is
// declared as an image. It writes the 400 response itself and returns ok=false.
func (h *PlateHandler) readImageUpload(c *gin.Context) ([]byte, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequestResponse(c, "missing multipart field 'file'")
		return nil, false
	}
	if !isImageContentType(fh.Header.Get("Content-Type")) {
		badRequestResponse(c, msgNotAnImage)
		return nil, false
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		errorResponse(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("image larger than %d bytes", h.maxBytes))
		return nil, false
	}

	f, err := fh.Open()
	if err != nil {
		internalErrorResponse(c, fmt.Errorf("failed to open upload: %w", err))
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		internalErrorResponse(c, fmt.Errorf("failed to read upload: %w", err))
		return nil, false
	}
	return data, true
}

// OCRPlaca POST /api/ocr_placa/
func (h *PlateHandler) OCRPlaca(c *gin.Context) {
	enhance := true
	if raw := c.Query("enhance_contrast"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequestResponse(c, "enhance_contrast must be a boolean")
			return
		}
		enhance = v
	} else if raw := c.PostForm("enhance_contrast"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequestResponse(c, "enhance_contrast must be a boolean")
			return
		}
		enhance = v
	}

	data, ok := h.readImageUpload(c)
	if !ok {
		return
	}

	placa, err := h.plates.Recognize(c.Request.Context(), data, enhance)
	switch {
	case apperr.IsCode(err, apperr.INVALID_IMAGE):
		codedErrorResponse(c, http.StatusBadRequest, msgInvalidImage, apperr.INVALID_IMAGE, err.Error())
	case errors.Is(err, plate.ErrPlateNotFound):
		errorResponse(c, http.StatusNotFound, msgPlateNotFound)
	case err != nil:
		processingErrorResponse(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"placa": placa})
	}
}

// OCRPlaca2 POST /api/ocr_placa2/
// The model output is returned as-is, without plate validation.
func (h *PlateHandler) OCRPlaca2(c *gin.Context) {
	engine := h.trocr.Name()

	data, ok := h.readImageUpload(c)
	if !ok {
		metrics.RecordOCRRequest(engine, "bad_input")
		return
	}

	img, err := trocr.Decode(data)
	if err != nil {
		metrics.RecordOCRRequest(engine, "bad_input")
		perr := apperr.NewInvalidImageError(err)
		codedErrorResponse(c, http.StatusBadRequest, msgInvalidImage, perr.Code, perr.Error())
		return
	}

	text, err := h.trocr.Recognize(c.Request.Context(), img)
	if err != nil {
		metrics.RecordOCRRequest(engine, "error")
		perr := apperr.NewTrOCRError(err)
		_ = c.Error(perr)
		// 模型错误只写日志，不返回给客户端
		codedErrorResponse(c, http.StatusInternalServerError, msgTrOCRFailed, perr.Code, "")
		return
	}

	metrics.RecordOCRRequest(engine, "found")
	c.JSON(http.StatusOK, gin.H{"placa": text})
}
