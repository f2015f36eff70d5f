// Package response holds the JSON contract shared by all endpoints.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duetapp/duet-api/internal/models"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
)

// Envelope wraps every response body. Exactly one of Data and Error is
// set; Pagination accompanies list payloads.
type Envelope struct {
	Data       interface{}        `json:"data,omitempty"`
	Error      *appErrors.Error   `json:"error,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
}

// JSON sends a success envelope. Responses are marked uncacheable
// since every endpoint is per-user.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, Pagination: pagination})
}

// Created responds with HTTP 201.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// NoContent responds with HTTP 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error maps any error onto the envelope, normalizing unknown errors
// to an opaque internal error.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr})
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
