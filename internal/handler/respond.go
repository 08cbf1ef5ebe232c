package handler

import (
	"errors"
	"net/http"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/clipsyncapp/api-clipsync/internal/service"
	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto the API's error taxonomy:
// validation and missing references are 422, auth failures 401 (forcing
// client logout), ownership/scope mismatches 403, duplicates 409.
func respondError(c *gin.Context, err error) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusUnprocessableEntity, model.ValidationErrorResponse{
			Error:  "Validation failed",
			Fields: []model.FieldError{{Field: vErr.Field, Errors: []string{vErr.Detail}}},
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Referenced entity not found"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Unauthorized"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "Forbidden"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "Conflict"})
	default:
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: err.Error()})
	}
}
