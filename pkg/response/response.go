package response

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the envelope every API answer is wrapped in.
type Body struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Envelope is Body as seen by a client, with data left undecoded.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// OK sends 200 with data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends 201 with data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Fail sends an error envelope with the given status.
func Fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Body{Success: false, Error: msg})
}

func BadRequest(c *gin.Context, msg string) { Fail(c, http.StatusBadRequest, msg) }

func NotFound(c *gin.Context, msg string) { Fail(c, http.StatusNotFound, msg) }

// Conflict reports an operation against a session that already ended.
func Conflict(c *gin.Context, msg string) { Fail(c, http.StatusConflict, msg) }

// ServiceUnavailable reports a dependency (store, token credentials) that cannot serve the request.
func ServiceUnavailable(c *gin.Context, msg string) { Fail(c, http.StatusServiceUnavailable, msg) }

func Internal(c *gin.Context, msg string) { Fail(c, http.StatusInternalServerError, msg) }
