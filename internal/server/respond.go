package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/alexjbarnes/mdnotes/internal/errors"
	"github.com/alexjbarnes/mdnotes/internal/github"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// maxBodyBytes caps request bodies. A note is a whole markdown file.
const maxBodyBytes = 10 << 20

type errResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps workspace and remote errors to HTTP statuses.
func statusFor(err error) int {
	var verrs validation.Errors

	switch {
	case errors.As(err, &verrs), errors.Is(err, apperrors.ErrInvalidChange):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrMissingCredentials):
		return http.StatusPreconditionFailed
	case errors.Is(err, apperrors.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, github.ErrUnauthorized),
		errors.Is(err, github.ErrForbidden),
		errors.Is(err, github.ErrConflict),
		errors.Is(err, apperrors.ErrAPIRequest),
		errors.Is(err, apperrors.ErrAPIResponse):
		return http.StatusBadGateway
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the status for err. Internal errors are
// logged and their text is not sent.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	body := errResponse{Error: err.Error()}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		body.Error = "invalid request"
		body.Fields = make(map[string]string, len(verrs))

		for field, ferr := range verrs {
			body.Fields[field] = ferr.Error()
		}
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		body.Error = "internal error"
	}

	writeJSON(w, status, body)
}

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v validation.Validatable) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return validation.Errors{"body": errors.New("must be a JSON object")}
	}

	return v.Validate()
}
