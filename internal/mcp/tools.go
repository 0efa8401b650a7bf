package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/nlp"
	"github.com/fyrsmithlabs/opsagent/internal/workflow"
)

// Tool names.
const (
	ToolProcessRequest = "process_request"
	ToolPlanRequest    = "plan_request"
	ToolListIntents    = "list_intents"
)

type requestInput struct {
	Text string `json:"text" jsonschema:"Operator request in plain English, e.g. deploy nginx with 3 replicas in staging"`
}

type processOutput struct {
	SessionID string `json:"session_id" jsonschema:"Session the request ran in"`
	Kind      string `json:"kind" jsonschema:"Outcome: ok, invalid_input, unknown_intent, not_implemented, execution_error, router_error or blocked"`
	Intent    string `json:"intent,omitempty" jsonschema:"Classified intent"`
	Workflow  string `json:"workflow,omitempty" jsonschema:"Workflow the request was routed to"`
	Message   string `json:"message" jsonschema:"Result line shown to the operator"`
}

type planOutput struct {
	Intent   string         `json:"intent" jsonschema:"Classified intent"`
	Workflow string         `json:"workflow" jsonschema:"Workflow the request maps to"`
	Entities map[string]any `json:"entities" jsonschema:"Extracted entities"`
	Inferred []string       `json:"inferred,omitempty" jsonschema:"Entities guessed rather than stated"`
	Allowed  bool           `json:"allowed" jsonschema:"Whether the safety gate allows the request"`
	Reason   string         `json:"reason" jsonschema:"Safety gate reason"`
	Policy   string         `json:"policy" jsonschema:"Safety policy in force: enforce or off"`
}

type listIntentsInput struct{}

type intentInfo struct {
	Intent      string   `json:"intent"`
	Workflow    string   `json:"workflow"`
	Implemented bool     `json:"implemented"`
	Keywords    []string `json:"keywords"`
}

type listIntentsOutput struct {
	Intents []intentInfo `json:"intents"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: ToolProcessRequest,
		Description: "Run an operations request (deploy, rollback, debug, scale, logs, cost, " +
			"pipeline, status) against the configured backends. Destructive requests are " +
			"blocked by the safety gate. Follow-up requests share session memory.",
	}, s.processRequest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolPlanRequest,
		Description: "Show how a request would be interpreted and whether the safety gate allows it, without running it.",
	}, s.planRequest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolListIntents,
		Description: "List the recognized intents, their keywords and whether a workflow handles them.",
	}, s.listIntents)
}

func (s *Server) processRequest(ctx context.Context, _ *mcp.CallToolRequest, args requestInput) (*mcp.CallToolResult, processOutput, error) {
	done := s.metrics.Track(ctx, ToolProcessRequest)
	ctx = logging.WithSessionID(ctx, s.session.ID)

	res := s.services.Router().Process(ctx, s.session, args.Text)
	out := processOutput{
		SessionID: s.session.ID,
		Kind:      string(res.Kind),
		Intent:    string(res.Intent),
		Workflow:  string(res.Workflow),
		Message:   res.Message(),
	}

	var toolErr error
	switch res.Kind {
	case workflow.KindExecutionError, workflow.KindRouterError:
		toolErr = res.Err
		s.logger.Warn(ctx, "request failed", zap.String("kind", out.Kind), zap.Error(res.Err))
	}
	done(toolErr)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: out.Message}},
		IsError: !res.Succeeded(),
	}, out, nil
}

func (s *Server) planRequest(ctx context.Context, _ *mcp.CallToolRequest, args requestInput) (*mcp.CallToolResult, planOutput, error) {
	done := s.metrics.Track(ctx, ToolPlanRequest)
	preview, err := s.services.Router().Preview(ctx, args.Text)
	done(err)
	if err != nil {
		return nil, planOutput{}, err
	}

	out := planOutput{
		Intent:   string(preview.Plan.Intent),
		Workflow: string(preview.Plan.Workflow),
		Entities: make(map[string]any, len(preview.Plan.Entities)),
		Inferred: preview.Plan.InferredFields(),
		Allowed:  preview.Decision.Allowed,
		Reason:   preview.Decision.Reason,
		Policy:   string(preview.Policy),
	}
	for f, v := range preview.Plan.Entities {
		out.Entities[string(f)] = v
	}

	text := fmt.Sprintf("%s -> %s (%s)", out.Intent, out.Workflow, out.Reason)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

func (s *Server) listIntents(ctx context.Context, _ *mcp.CallToolRequest, _ listIntentsInput) (*mcp.CallToolResult, listIntentsOutput, error) {
	done := s.metrics.Track(ctx, ToolListIntents)
	defer done(nil)

	var out listIntentsOutput
	lines := make([]string, 0, len(nlp.AllIntents()))
	for _, intent := range nlp.AllIntents() {
		id := nlp.MapIntent(intent)
		info := intentInfo{
			Intent:      string(intent),
			Workflow:    string(id),
			Implemented: s.implemented(id),
			Keywords:    nlp.Keywords(intent),
		}
		sort.Strings(info.Keywords)
		out.Intents = append(out.Intents, info)
		if len(info.Keywords) > 0 {
			lines = append(lines, fmt.Sprintf("%s: %s", intent, strings.Join(info.Keywords, ", ")))
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.Join(lines, "\n")}},
	}, out, nil
}

func (s *Server) implemented(id nlp.WorkflowID) bool {
	exec := s.services.Executor()
	if exec == nil {
		return false
	}
	_, ok := exec.Registry().Lookup(id)
	return ok
}
