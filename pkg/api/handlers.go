package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Mindburn-Labs/uclse/pkg/apierr"
	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/usercode"
)

// maxRequestBody caps decoded request bodies on every POST endpoint.
const maxRequestBody = 1 << 20 // 1MB

// Server exposes Service's five operations as JSON HTTP endpoints
// under /api/v1/usercode/*.
type Server struct {
	svc *Service
}

func NewServer(svc *Service) *Server { return &Server{svc: svc} }

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/usercode/submit", s.HandleSubmitCode)
	mux.HandleFunc("/api/v1/usercode/approve", s.HandleApproveCode)
	mux.HandleFunc("/api/v1/usercode/deny", s.HandleDenyCode)
	mux.HandleFunc("/api/v1/usercode/execute", s.HandleExecuteCode)
	mux.HandleFunc("/api/v1/usercode/result", s.HandleGetResult)
}

// submitCodeRequest mirrors usercode.Submission, flattened for JSON
// transport over the wire (the request surface's client-facing shape;
// usercode.Submission itself stays a Go struct embedding
// contracts.SubmittedCode for in-process callers).
type submitCodeRequest struct {
	usercode.Submission
}

func (s *Server) HandleSubmitCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req submitCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.RawSource == "" || req.FuncName == "" {
		apierr.WriteBadRequest(w, "missing required fields: raw_source, func_name")
		return
	}

	record, err := s.svc.SubmitCode(r.Context(), req.Submission)
	if err != nil {
		if dup, ok := err.(*contracts.Duplicate); ok {
			writeJSON(w, http.StatusOK, map[string]string{"id": dup.ExistingID, "status": "duplicate"})
			return
		}
		apierr.WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type approvalRequest struct {
	CodeID string                   `json:"code_id"`
	Node   contracts.NodeIdentity   `json:"node"`
	Reason string                   `json:"reason"`
}

func (s *Server) HandleApproveCode(w http.ResponseWriter, r *http.Request) {
	s.handleApprovalTransition(w, r, s.svc.ApproveCode)
}

func (s *Server) HandleDenyCode(w http.ResponseWriter, r *http.Request) {
	s.handleApprovalTransition(w, r, s.svc.DenyCode)
}

func (s *Server) handleApprovalTransition(w http.ResponseWriter, r *http.Request, transition func(context.Context, string, contracts.NodeIdentity, string) error) {
	if r.Method != http.MethodPost {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.CodeID == "" || req.Node.NodeID == "" {
		apierr.WriteBadRequest(w, "missing required fields: code_id, node.node_id")
		return
	}

	if err := transition(r.Context(), req.CodeID, req.Node, req.Reason); err != nil {
		apierr.WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code_id": req.CodeID, "status": "ok"})
}

type executeCodeRequest struct {
	CodeID    string                 `json:"code_id"`
	Submitter contracts.VerifyKey    `json:"submitter"`
	Kwargs    map[string]interface{} `json:"kwargs"`
}

func (s *Server) HandleExecuteCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req executeCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.CodeID == "" {
		apierr.WriteBadRequest(w, "missing required field: code_id")
		return
	}

	result, err := s.svc.ExecuteCode(r.Context(), req.CodeID, req.Submitter, req.Kwargs)
	if err != nil {
		apierr.WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	codeID := r.URL.Query().Get("code_id")
	if codeID == "" {
		apierr.WriteBadRequest(w, "missing required query parameter: code_id")
		return
	}

	result, ok := s.svc.GetResult(r.Context(), codeID)
	if !ok {
		apierr.WriteNotFound(w, "no result recorded for this user code id yet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
