package nlp

// WorkflowID names a workflow handler.
type WorkflowID string

const (
	WorkflowDeploy        WorkflowID = "deploy"
	WorkflowRollback      WorkflowID = "rollback"
	WorkflowDebug         WorkflowID = "debug"
	WorkflowBuild         WorkflowID = "build"
	WorkflowLogs          WorkflowID = "logs"
	WorkflowCostAnalysis  WorkflowID = "cost_analysis"
	WorkflowPipelineDebug WorkflowID = "pipeline_debug"
	WorkflowScale         WorkflowID = "scale"
	WorkflowClusterHealth WorkflowID = "cluster_health"

	// WorkflowUnknown means no handler is bound to the intent.
	WorkflowUnknown WorkflowID = "unknown"
)

var intentWorkflows = map[Intent]WorkflowID{
	IntentDeploy:   WorkflowDeploy,
	IntentRollback: WorkflowRollback,
	IntentDebug:    WorkflowDebug,
	IntentBuild:    WorkflowBuild,
	IntentLogs:     WorkflowLogs,
	IntentCost:     WorkflowCostAnalysis,
	IntentPipeline: WorkflowPipelineDebug,
	IntentScale:    WorkflowScale,
	IntentStatus:   WorkflowClusterHealth,
}

// MapIntent returns the workflow bound to intent. Any intent outside the
// table, IntentUnknown included, maps to WorkflowUnknown.
func MapIntent(intent Intent) WorkflowID {
	if id, ok := intentWorkflows[intent]; ok {
		return id
	}
	return WorkflowUnknown
}

// Known reports whether id names a defined workflow. WorkflowUnknown and
// any value outside the constants above are not known.
func (id WorkflowID) Known() bool {
	switch id {
	case WorkflowDeploy, WorkflowRollback, WorkflowDebug, WorkflowBuild, WorkflowLogs,
		WorkflowCostAnalysis, WorkflowPipelineDebug, WorkflowScale, WorkflowClusterHealth:
		return true
	case WorkflowUnknown:
		return false
	}
	return false
}
