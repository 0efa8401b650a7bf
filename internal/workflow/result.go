package workflow

import (
	"fmt"

	"github.com/fyrsmithlabs/opsagent/internal/nlp"
)

// Kind classifies the outcome of one dispatch.
type Kind string

const (
	KindOK             Kind = "ok"
	KindInvalidInput   Kind = "invalid_input"
	KindUnknownIntent  Kind = "unknown_intent"
	KindNotImplemented Kind = "not_implemented"
	KindExecutionError Kind = "execution_error"
	KindRouterError    Kind = "router_error"
	KindBlocked        Kind = "blocked"
)

// Kinds lists every result kind.
var Kinds = []Kind{
	KindOK, KindInvalidInput, KindUnknownIntent, KindNotImplemented,
	KindExecutionError, KindRouterError, KindBlocked,
}

// Result is the outcome of one dispatch. Exactly one line of operator
// feedback is rendered from it by Message.
type Result struct {
	Kind     Kind
	Intent   nlp.Intent
	Workflow nlp.WorkflowID
	Output   string
	Reason   string
	Err      error
}

// OK reports a successful handler run.
func OK(id nlp.WorkflowID, output string) Result {
	return Result{Kind: KindOK, Workflow: id, Output: output}
}

// InvalidInput reports a request rejected before planning.
func InvalidInput() Result {
	return Result{Kind: KindInvalidInput}
}

// UnknownIntent reports a plan no workflow is bound to.
func UnknownIntent(intent nlp.Intent) Result {
	if intent == "" {
		intent = nlp.IntentUnknown
	}
	return Result{Kind: KindUnknownIntent, Intent: intent, Workflow: nlp.WorkflowUnknown}
}

// NotImplemented reports a workflow with no registered handler.
func NotImplemented(id nlp.WorkflowID) Result {
	return Result{Kind: KindNotImplemented, Workflow: id}
}

// ExecutionFailed reports a handler that failed to build or run.
func ExecutionFailed(id nlp.WorkflowID, err error) Result {
	return Result{Kind: KindExecutionError, Workflow: id, Err: err}
}

// RouterFailed reports a failure outside any handler.
func RouterFailed(err error) Result {
	return Result{Kind: KindRouterError, Err: err}
}

// Blocked reports a request stopped by the safety policy.
func Blocked(id nlp.WorkflowID, reason string) Result {
	return Result{Kind: KindBlocked, Workflow: id, Reason: reason}
}

// Succeeded reports whether the handler ran to completion.
func (r Result) Succeeded() bool { return r.Kind == KindOK }

// Message renders the operator-facing line for r.
func (r Result) Message() string {
	switch r.Kind {
	case KindOK:
		return r.Output
	case KindInvalidInput:
		return "Invalid query."
	case KindUnknownIntent:
		intent := r.Intent
		if intent == "" {
			intent = nlp.IntentUnknown
		}
		return fmt.Sprintf("Unknown intent: %s", intent)
	case KindNotImplemented:
		return fmt.Sprintf("workflow not implemented: %s", r.Workflow)
	case KindExecutionError:
		return fmt.Sprintf("Execution error: %s", errText(r.Err))
	case KindRouterError:
		return fmt.Sprintf("Router error: %s", errText(r.Err))
	case KindBlocked:
		return fmt.Sprintf("Safety blocked: %s", r.Reason)
	}
	return fmt.Sprintf("unexpected result kind %q", r.Kind)
}

// ErrorText returns the error message, or "" when there is none.
func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
