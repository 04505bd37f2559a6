package handler

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/gameauth/internal/api/apierr"
	"github.com/mcoot/gameauth/internal/api/request"
)

// writeError writes the error envelope. Server-side failures are logged
// with their cause, which never reaches the client.
func writeError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if apierr.Status(err) >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	apierr.WriteError(w, err)
}

// decode reads the JSON body into v
func decode(r *http.Request, v any) error {
	if err := request.Decode(r, v); err != nil {
		return apierr.NewInvalidRequestError("invalid request body")
	}
	return nil
}
