package handler

import (
	"errors"
	"net/http"
	"strconv"

	"Green_Community/internal/middleware"
	"Green_Community/internal/pkg"

	"github.com/gin-gonic/gin"
)

// respondError 按错误分类给出状态码，body 带 msg 和 code
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pkg.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, pkg.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, pkg.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pkg.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, pkg.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, pkg.ErrUpstream):
		status = http.StatusBadGateway
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// 内部错误只进日志，不回给调用方
		_ = c.Error(err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"msg": msg, "code": pkg.ErrorCode(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"msg": msg, "code": pkg.ErrorCode(pkg.ErrValidation)})
}

// currentUser 由 AuthMiddleware 注入
func currentUser(c *gin.Context) uint64 {
	return c.GetUint64(middleware.ContextUserIDKey)
}

func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
