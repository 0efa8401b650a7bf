package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/opsagent/internal/nlp"
	"github.com/fyrsmithlabs/opsagent/internal/tools/cost"
)

type costHandler struct {
	deps Deps
}

// NewCostAnalysis builds the cost_analysis handler.
func NewCostAnalysis(deps Deps) (Handler, error) {
	deps = deps.withDefaults()
	if deps.Cost == nil {
		return nil, unavailable("kubecost")
	}
	return &costHandler{deps: deps}, nil
}

func (h *costHandler) Execute(ctx context.Context, req Request) (string, error) {
	q := cost.Query{
		Window:    h.deps.Settings.CostWindow,
		Namespace: req.entity(nlp.FieldNamespace),
		App:       req.app(),
	}
	allocs, err := h.deps.Cost.Allocation(ctx, q)
	if err != nil {
		return "", opError("cost_analysis", "query allocation", SeverityCritical, err)
	}

	scope := "cluster"
	switch {
	case q.App != "" && q.Namespace != "":
		scope = q.Namespace + "/" + q.App
	case q.App != "":
		scope = q.App
	case q.Namespace != "":
		scope = q.Namespace
	}

	var b strings.Builder
	for _, a := range allocs {
		fmt.Fprintf(&b, "%s $%.2f (cpu $%.2f, ram $%.2f, pv $%.2f)\n", a.Name, a.TotalCost, a.CPUCost, a.RAMCost, a.PVCost)
	}
	total := cost.Total(allocs)
	var rep report
	rep.add(fmt.Sprintf("cost %s over %s", scope, q.Window), b.String())
	rep.add("total", fmt.Sprintf("$%.2f", total))

	req.Finish(nlp.WorkflowCostAnalysis, "kubecost-allocation",
		fmt.Sprintf("%s cost $%.2f over %s", scope, total, q.Window), nil)
	return explain(ctx, req, "cost data for "+scope, rep.String()), nil
}
