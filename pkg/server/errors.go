package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jobtrail/jobtrail/internal/errors"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case "J011", "J020", "J023":
		return http.StatusNotFound
	case "J013", "J021", "J024":
		return http.StatusBadRequest
	case "J010", "J012":
		return http.StatusConflict
	case "J022":
		return http.StatusBadGateway
	case "J041":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as JSON. Uncoded errors become a 500 without
// their text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code == "" {
		e = errors.Newf(errors.CategoryTransport, "internal error").Wrap(err)
	}
	status := statusFor(e.Code)

	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", attrs...)
	} else {
		s.logger.Warn("request rejected", attrs...)
	}

	writeJSON(w, status, errorResponse{Code: e.Code, Message: e.Message, Detail: e.Detail})
}

// decode reads a JSON body into v. With optional set an empty body leaves
// v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if optional && stderrors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.New("J021").WithDetail("request body is too large").Wrap(err)
		}
		return errors.New("J021").WithDetail("request body is not valid JSON").Wrap(err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
