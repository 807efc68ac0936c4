package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	nativecommon "creditpool/native/common"
)

var errInvalidRequest = nativecommon.NewError(nativecommon.KindInvalidInput, "invalid request")

type problem struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps an engine error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch nativecommon.KindOf(err) {
	case nativecommon.KindInvalidInput:
		return http.StatusBadRequest
	case nativecommon.KindPolicyViolation:
		return http.StatusConflict
	case nativecommon.KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("lending operation failed", "operation", op, "error", err)
		writeProblem(w, status, http.StatusText(status), "")
		return
	}
	writeProblem(w, status, err.Error(), nativecommon.KindOf(err).String())
}

func writeProblem(w http.ResponseWriter, status int, msg, kind string) {
	if kind == nativecommon.KindUnknown.String() {
		kind = ""
	}
	writeJSON(w, status, problem{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
