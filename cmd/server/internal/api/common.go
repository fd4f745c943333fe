package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/diegors10/projetoAPIs/cmd/server/internal/apperr"
)

// errorResponse 返回错误响应
func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error": message,
	})
}

// errorResponseWithDetail 返回带详情的错误响应
func errorResponseWithDetail(c *gin.Context, code int, message string, detail interface{}) {
	c.JSON(code, gin.H{
		"error":  message,
		"detail": detail,
	})
}

// codedErrorResponse 返回带错误码的响应，detail 为空时省略
func codedErrorResponse(c *gin.Context, status int, message string, code apperr.ErrorCode, detail string) {
	body := gin.H{
		"error": message,
		"code":  code,
	}
	if detail != "" {
		body["detail"] = detail
	}
	c.JSON(status, body)
}

// notFoundResponse 返回 404 响应
func notFoundResponse(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": resource + " not found",
	})
}

// badRequestResponse 返回 400 响应
func badRequestResponse(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": message,
	})
}

// internalErrorResponse 返回 500 响应，detail 为底层错误文本
func internalErrorResponse(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":  "internal server error",
		"detail": err.Error(),
	})
}

// processingErrorResponse 将处理错误映射为 HTTP 响应
func processingErrorResponse(c *gin.Context, err error) {
	code := apperr.GetErrorCode(err)
	switch code {
	case apperr.UNSUPPORTED_FORMAT, apperr.INVALID_IMAGE:
		codedErrorResponse(c, http.StatusBadRequest, "invalid input", code, err.Error())
	default:
		_ = c.Error(err)
		codedErrorResponse(c, http.StatusInternalServerError, "processing failed", code, err.Error())
	}
}

// isImageContentType 检查上传文件声明的类型
func isImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
