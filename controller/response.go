package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itish2003/ragagent/models"
)

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch models.ErrorKind(err) {
	case "InvalidInput", "UnsupportedFormat":
		return http.StatusBadRequest
	case "EmbeddingMismatch":
		return http.StatusConflict
	case "IngestionError":
		return http.StatusUnprocessableEntity
	case "ExternalServiceFailure":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(statusFor(err), models.ErrorResponse{
		Error: msg,
		Kind:  models.ErrorKind(err),
	})
}

func respondBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: msg, Kind: "InvalidInput"})
}
