package http

import (
	"github.com/fyrsmithlabs/opsagent/internal/router"
	"github.com/fyrsmithlabs/opsagent/internal/workflow"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Policy   string            `json:"policy"`
	Sessions int               `json:"sessions"`
	Models   map[string]string `json:"models,omitempty"`
}

// TextRequest is the request body for the process and plan endpoints.
type TextRequest struct {
	Text string `json:"text"`
}

// SessionResponse is the response body for POST /api/v1/sessions.
type SessionResponse struct {
	ID string `json:"id"`
}

// ProcessResponse is the response body for POST /api/v1/sessions/:id/process.
type ProcessResponse struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Intent    string `json:"intent,omitempty"`
	Workflow  string `json:"workflow,omitempty"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

func newProcessResponse(sessionID string, res workflow.Result) ProcessResponse {
	return ProcessResponse{
		SessionID: sessionID,
		Kind:      string(res.Kind),
		Intent:    string(res.Intent),
		Workflow:  string(res.Workflow),
		Message:   res.Message(),
		Error:     res.ErrorText(),
	}
}

// PlanResponse is the response body for POST /api/v1/plan.
type PlanResponse = router.Preview
