package response

import (
	"net/http"

	"oldmarket/pkg/logger"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Response 统一响应结构体
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"` // 提示信息
	Data    interface{} `json:"data,omitempty"`    // 数据
	Error   string      `json:"error,omitempty"`
}

// Success 成功响应 (200)
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// Created 创建成功 (201)
func Created(ctx *gin.Context, msg string, data interface{}) {
	ctx.JSON(http.StatusCreated, Response{Success: true, Message: msg, Data: data})
}

// Error 失败响应
func Error(ctx *gin.Context, httpStatus int, msg string) {
	ctx.JSON(httpStatus, Response{Success: false, Error: msg})
}

// HTTPStatus 把服务层返回的 gRPC 状态码翻译成 HTTP 状态码
func HTTPStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromError 业务错误原样返回提示信息，其它错误只返回通用提示并记录日志
func FromError(ctx *gin.Context, err error) {
	st, ok := status.FromError(err)
	if !ok {
		st = status.New(codes.Internal, err.Error())
	}

	code := HTTPStatus(st.Code())
	switch {
	case code == http.StatusBadGateway:
		logger.Warn(ctx.Request.Context(), "upstream unavailable", "path", ctx.FullPath(), "error", st.Message())
		Error(ctx, code, st.Message())
	case code >= http.StatusInternalServerError:
		logger.Error(ctx.Request.Context(), "request failed",
			"method", ctx.Request.Method,
			"path", ctx.FullPath(),
			"error", st.Message(),
		)
		Error(ctx, code, "internal server error")
	default:
		Error(ctx, code, st.Message())
	}
}
