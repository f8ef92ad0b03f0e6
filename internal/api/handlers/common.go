package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yoockh/madprep/internal/utils"
)

// retryAfter is advertised on 503 and 504 responses, in seconds.
const retryAfter = "30"

type APIError struct {
	Code      utils.Code `json:"code"`
	Message   string     `json:"message"`
	RequestID string     `json:"request_id,omitempty"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	_ = c.Error(err)

	if utils.Retryable(err) {
		c.Header("Retry-After", retryAfter)
	}

	body := APIError{
		Code:      utils.CodeInternal,
		Message:   http.StatusText(status),
		RequestID: c.GetString("request_id"),
	}
	var ae *utils.AppError
	if errors.As(err, &ae) {
		body.Code = ae.Code
		body.Message = ae.Message
	}
	c.JSON(status, body)
}

func requireUserID(c *gin.Context) (string, bool) {
	if s := c.GetString("user_id"); s != "" {
		return s, true
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

// sessionIDParam reads :session_id. Session ids are UUIDs; anything else is
// rejected before a store lookup.
func sessionIDParam(c *gin.Context, op string) (string, bool) {
	id := c.Param("session_id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid session_id", err))
		return "", false
	}
	return id, true
}
