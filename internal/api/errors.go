package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/memoryledger/internal/applier"
	"github.com/jmerrifield20/memoryledger/pkg/wire"
)

var statuses = map[applier.Code]int{
	applier.CodeUnauthorized:        http.StatusUnauthorized,
	applier.CodeInvalidProofChain:   http.StatusUnprocessableEntity,
	applier.CodeDuplicateID:         http.StatusConflict,
	applier.CodeUnknownCharacter:    http.StatusNotFound,
	applier.CodeNotFound:            http.StatusNotFound,
	applier.CodeInsufficientBalance: http.StatusConflict,
	applier.CodeVerificationTimeout: http.StatusGatewayTimeout,
	applier.CodeInvalidRequest:      http.StatusBadRequest,
	applier.CodeInternal:            http.StatusInternalServerError,
}

// StatusOf returns the HTTP status for an applier error code.
func StatusOf(code applier.Code) int {
	if s, ok := statuses[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// abort writes err as a wire.ErrorResponse. Errors that are not
// *applier.Error are reported as Internal.
func abort(c *gin.Context, err error) {
	var e *applier.Error
	if !errors.As(err, &e) {
		e = &applier.Error{Code: applier.CodeInternal, Err: err}
	}
	c.AbortWithStatusJSON(StatusOf(e.Code), wire.ErrorResponse{
		Error: e.Error(),
		Code:  string(e.Code),
	})
}

func badRequest(c *gin.Context, err error) {
	abort(c, &applier.Error{Code: applier.CodeInvalidRequest, Err: err})
}
