package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Rule       string            `json:"rule,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Violations []Violation       `json:"violations,omitempty"`
}

type Meta struct {
	Total int64 `json:"total,omitempty"`
	Count int   `json:"count,omitempty"`
}

func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func SuccessResponseWithMeta(c *gin.Context, message string, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Meta:      meta,
		Timestamp: time.Now(),
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, APIResponse{
		Status: StatusError,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now(),
	})
}

// StoreErrorResponse maps a store failure onto an HTTP status. Errors that
// are not *StoreError become a 500.
func StoreErrorResponse(c *gin.Context, err error) {
	storeErr, ok := AsStoreError(err)
	if !ok {
		if errors.Is(err, ErrTxClosed) {
			ErrorResponse(c, http.StatusGone, "TX_CLOSED", err.Error())
			return
		}
		InternalServerErrorResponse(c)
		return
	}

	details := map[string]string{}
	if storeErr.Table != "" {
		details["table"] = storeErr.Table
	}
	if storeErr.Key != "" {
		details["key"] = storeErr.Key
	}
	if storeErr.Field != "" {
		details["field"] = storeErr.Field
		details["value"] = storeErr.Value
	}

	c.JSON(StatusForKind(storeErr.Kind), APIResponse{
		Status: StatusError,
		Error: &APIError{
			Code:       string(storeErr.Kind),
			Message:    storeErr.Error(),
			Rule:       storeErr.Rule,
			Details:    details,
			Violations: storeErr.Violations,
		},
		Timestamp: time.Now(),
	})
}

func StatusForKind(kind ErrorKind) int {
	switch kind {
	case KindDuplicateKey, KindConcurrentModification, KindReferentialViolation:
		return http.StatusConflict
	case KindDomainRuleViolation, KindConsistencyViolation, KindDanglingReference:
		return http.StatusUnprocessableEntity
	case KindNotFound, KindUnknownTable:
		return http.StatusNotFound
	case KindTxClosed:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func InternalServerErrorResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", ErrInternalServer)
}

func NotFoundResponse(c *gin.Context, resource string) {
	ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", resource+" not found")
}

func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}
