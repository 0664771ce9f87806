package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/taoyao-code/hdmi-matrix/internal/preset"
	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
)

// classifyError 映射为 HTTP 状态码与错误码
func classifyError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, hdmx.Kind(nil)
	case errors.Is(err, preset.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, hdmx.ErrInvalidPort), errors.Is(err, hdmx.ErrInvalidArgument):
		return http.StatusBadRequest, hdmx.Kind(err)
	case errors.Is(err, hdmx.ErrTimeout):
		return http.StatusGatewayTimeout, hdmx.Kind(err)
	case errors.Is(err, hdmx.ErrUnexpectedResponse), errors.Is(err, hdmx.ErrMalformedStatus):
		return http.StatusBadGateway, hdmx.Kind(err)
	case errors.Is(err, hdmx.ErrTransport):
		return http.StatusServiceUnavailable, hdmx.Kind(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
