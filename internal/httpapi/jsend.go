package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/syncer"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

type errorResponse struct {
	Success bool           `json:"success"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func success(c echo.Context, data any) error {
	return successWithMessage(c, "", data)
}

func successWithMessage(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusOK, successResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// fail writes an error envelope. data always carries the status.
func fail(c echo.Context, status int, code, message string, data map[string]any) error {
	payload := map[string]any{"status": status}
	for key, value := range data {
		if key == "status" {
			continue
		}
		payload[key] = value
	}
	return c.JSON(status, errorResponse{
		Success: false,
		Code:    code,
		Message: message,
		Data:    payload,
	})
}

func failValidation(c echo.Context, fieldErrors map[string]string) error {
	return fail(c, http.StatusBadRequest, syncer.CodeValidation, "Validation failed", map[string]any{
		"params": fieldErrors,
	})
}

func failSync(c echo.Context, serr *syncer.Error) error {
	var data map[string]any
	if len(serr.Reasons) > 0 {
		data = map[string]any{"reasons": serr.Reasons}
	}
	return fail(c, serr.HTTPStatus(), serr.Code, serr.Message, data)
}

func internalError(c echo.Context, code, message string) error {
	return fail(c, http.StatusInternalServerError, code, message, nil)
}
