package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   domain.Code `json:"error"`
	Message string      `json:"message"`
	Outcome string      `json:"outcome,omitempty"`
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code domain.Code) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.CodeConsistency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: domain.CodeInternal, Message: "internal error"}
	var de *domain.Error
	if errors.As(err, &de) {
		body.Error = de.Code
		if de.Code != domain.CodeInternal {
			body.Message = de.Message
		}
		if de.OutcomeUnknown {
			body.Outcome = "unknown"
		}
	}
	status := StatusFor(body.Error)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a single JSON object into dst, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.New(domain.CodeValidation, "request body is required")
		}
		return domain.Newf(domain.CodeValidation, "invalid request body: %v", err)
	}
	if dec.More() {
		return domain.New(domain.CodeValidation, "request body must contain a single JSON object")
	}
	return nil
}
