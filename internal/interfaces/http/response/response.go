package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hackhero/backend/internal/domain/apperr"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, errCode int, message string) {
	c.JSON(httpCode, ErrorResponse{
		Code:    errCode,
		Message: message,
	})
}

// FromError 按错误类别映射 HTTP 状态码的错误响应
func FromError(c *gin.Context, errCode int, err error) {
	c.JSON(apperr.HTTPStatus(err), ErrorResponse{
		Code:    errCode,
		Message: err.Error(),
		Kind:    string(apperr.KindOf(err)),
	})
}
