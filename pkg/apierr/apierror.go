// Package apierr renders UCLSE's typed domain errors (contracts.*Error)
// as RFC 7807 Problem Details over HTTP, so every operator-facing
// surface — submission, approval, execution — reports failures in one
// consistent shape instead of ad-hoc JSON per endpoint.
package apierr

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/uclse/pkg/contracts"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://uclse.local/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteErrorR writes an RFC 7807 response enriched with request context
// (trace_id from X-Request-ID, instance from request URI).
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://uclse.local/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  r.Header.Get("X-Request-ID"),
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteDomainError inspects err's concrete UCLSE type and renders the
// status/title that error kind implies, falling back to a generic 500
// for anything unrecognized. Every recognized kind, including the 503
// for DispatchError, carries err's text as the detail; an
// unrecognized error is logged and its text is never echoed,
// matching WriteInternal's own rule.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch e := err.(type) {
	case *contracts.NormalizerRejected:
		WriteErrorR(w, r, http.StatusUnprocessableEntity, "Code Rejected", e.Error())
	case *contracts.Duplicate:
		WriteErrorR(w, r, http.StatusConflict, "Duplicate Submission", e.Error())
	case *contracts.PolicyBindFailed:
		WriteErrorR(w, r, http.StatusUnprocessableEntity, "Policy Bind Failed", e.Error())
	case *contracts.ApprovalTargetMissing:
		WriteErrorR(w, r, http.StatusNotFound, "Approval Target Missing", e.Error())
	case *contracts.TerminalStateViolation:
		WriteErrorR(w, r, http.StatusConflict, "Terminal State Violation", e.Error())
	case *contracts.NotApproved:
		WriteErrorR(w, r, http.StatusForbidden, "Not Approved", e.Error())
	case *contracts.PolicyReject:
		WriteErrorR(w, r, http.StatusForbidden, "Policy Rejected Call", e.Error())
	case *contracts.CompileError:
		WriteErrorR(w, r, http.StatusUnprocessableEntity, "Compile Error", e.Error())
	case *contracts.RuntimeError:
		WriteErrorR(w, r, http.StatusUnprocessableEntity, "Runtime Error", e.Error())
	case *contracts.DispatchError:
		WriteErrorR(w, r, http.StatusServiceUnavailable, "Dispatch Error", e.Error())
	default:
		slog.Error("internal server error", "error", err)
		WriteErrorR(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
	}
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

// WriteInternal writes a 500 error response. err is logged but never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}
