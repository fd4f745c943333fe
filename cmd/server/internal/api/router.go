package api

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the media and OCR routes under /api.
func RegisterRoutes(r *gin.Engine, audioH *AudioHandler, plateH *PlateHandler) {
	api := r.Group("/api")

	extrator := api.Group("/extrator_audio")
	{
		extrator.POST("/", audioH.Submit)
		extrator.GET("/tasks", audioH.List)
		extrator.GET("/status/:task_id", audioH.Status)
		extrator.DELETE("/status/:task_id", audioH.Cancel)
		extrator.GET("/files/:name", audioH.File)
	}

	api.POST("/ocr_placa/", plateH.OCRPlaca)
	api.POST("/ocr_placa2/", plateH.OCRPlaca2)
}

// RegisterHealthRoutes mounts the liveness and readiness probes.
func RegisterHealthRoutes(r *gin.Engine, h *HealthHandler) {
	r.GET("/health", h.Health)
	r.GET("/readiness", h.Readiness)
}
