package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Uniform error envelope: {status:"fail"|"error", message}.
// "fail" is a client fault (4xx), "error" a server fault (5xx).

func RespondError(ctx *gin.Context, status int, message string) {
	kind := "fail"

	if status >= http.StatusInternalServerError {
		kind = "error"
	}

	ctx.JSON(status, gin.H{
		"status":  kind,
		"message": message,
	})
}

func RespondBadRequest(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusBadRequest, message)
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, message)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, message)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, message)
}
