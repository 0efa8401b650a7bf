// Package safety detects destructive requests before they are dispatched.
//
// Detection is a substring scan of the lower-cased request text. It is
// intentionally coarse: "terminated" matches "terminate" and a request is
// blocked whenever any destructive word appears, whether or not a protected
// resource is named. The resource only changes the reported reason.
package safety

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/config"
	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/planner"
)

// Policy selects whether the Router consults the gate before dispatch.
type Policy string

const (
	// PolicyEnforce checks every plan before it reaches a workflow.
	PolicyEnforce Policy = "enforce"
	// PolicyOff skips the pre-dispatch check. Workflows still call
	// ApproveDestroy for their own destructive sub-actions.
	PolicyOff Policy = "off"
)

// ParsePolicy converts a config value. Empty means PolicyEnforce.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyEnforce:
		return PolicyEnforce, nil
	case PolicyOff:
		return PolicyOff, nil
	default:
		return "", fmt.Errorf("unknown safety policy %q", s)
	}
}

// ReasonSafe is the reason attached to allowed decisions.
const ReasonSafe = "safe to execute"

var (
	defaultDestructive = []string{"destroy", "delete", "remove", "wipe", "kill", "shutdown", "terminate"}
	defaultProtected   = []string{"cluster", "eks", "gke", "aks", "namespace", "project"}
)

// Decision is the outcome of a check. It is produced per plan and never
// stored.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason"`
	Keyword  string `json:"keyword,omitempty"`
	Resource string `json:"resource,omitempty"`
}

// Gate holds the keyword lists and the destroy approval flag.
type Gate struct {
	policy       Policy
	destructive  []string
	protected    []string
	allowDestroy bool
	logger       *logging.Logger
}

// NewGate builds a gate from cfg. Extra words in cfg are appended to the
// built-in lists, which cannot be shortened.
func NewGate(cfg config.SafetyConfig, logger *logging.Logger) (*Gate, error) {
	policy, err := ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Gate{
		policy:       policy,
		destructive:  mergeWords(defaultDestructive, cfg.Destructive),
		protected:    mergeWords(defaultProtected, cfg.Protected),
		allowDestroy: cfg.AllowDestroy,
		logger:       logger.Named("safety"),
	}, nil
}

// Default returns a gate with the built-in lists, enforce policy and destroy
// approval withheld.
func Default() *Gate {
	g, _ := NewGate(config.SafetyConfig{}, nil)
	return g
}

func mergeWords(base, extra []string) []string {
	out := slices.Clone(base)
	for _, w := range extra {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && !slices.Contains(out, w) {
			out = append(out, w)
		}
	}
	return out
}

// Policy returns the configured policy.
func (g *Gate) Policy() Policy { return g.policy }

// Enforced reports whether the Router must check plans before dispatch.
func (g *Gate) Enforced() bool { return g.policy == PolicyEnforce }

// Check scans the plan's raw text. Destructive words are tried in list
// order and the first hit decides; protected resources only refine the
// reason.
func (g *Gate) Check(plan planner.Plan) Decision {
	return g.CheckText(plan.Raw)
}

// CheckText is Check on bare text.
func (g *Gate) CheckText(raw string) Decision {
	text := strings.ToLower(raw)
	for _, word := range g.destructive {
		if !strings.Contains(text, word) {
			continue
		}
		for _, res := range g.protected {
			if strings.Contains(text, res) {
				return Decision{
					Reason:   fmt.Sprintf("destructive action '%s %s' blocked", word, res),
					Keyword:  word,
					Resource: res,
				}
			}
		}
		return Decision{
			Reason:  fmt.Sprintf("destructive keyword '%s' blocked", word),
			Keyword: word,
		}
	}
	return Decision{Allowed: true, Reason: ReasonSafe}
}

// ApproveDestroy answers whether a workflow may run a destructive sub-action
// such as terraform destroy against target.
func (g *Gate) ApproveDestroy(ctx context.Context, target string) bool {
	if !g.allowDestroy {
		g.logger.Warn(ctx, "destroy withheld", zap.String("target", target))
		return false
	}
	g.logger.Info(ctx, "destroy approved", zap.String("target", target))
	return true
}
