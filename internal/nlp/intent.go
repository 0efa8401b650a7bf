package nlp

import "strings"

// Intent is the category of operation a request asks for.
type Intent string

const (
	IntentDeploy   Intent = "DEPLOY"
	IntentRollback Intent = "ROLLBACK"
	IntentDebug    Intent = "DEBUG"
	IntentScale    Intent = "SCALE"
	IntentBuild    Intent = "BUILD"
	IntentLogs     Intent = "LOGS"
	IntentCost     Intent = "COST"
	IntentPipeline Intent = "PIPELINE"
	IntentStatus   Intent = "STATUS"
	IntentUnknown  Intent = "UNKNOWN"
)

// The cascade is evaluated top to bottom and the first category with any
// keyword hit wins. Reordering changes classification of overlapping
// requests ("why is the pipeline failing" is DEBUG, not PIPELINE).
var cascade = []struct {
	intent   Intent
	keywords []string
}{
	{IntentDeploy, []string{"deploy", "launch", "start", "release", "create deployment", "apply"}},
	{IntentRollback, []string{"rollback", "undo", "revert", "previous version"}},
	{IntentDebug, []string{"debug", "fix", "fail", "error", "why", "troubleshoot", "issue"}},
	{IntentScale, []string{"scale", "increase", "decrease", "replicas", "autoscale"}},
	{IntentBuild, []string{"build", "image", "docker build", "container build"}},
	{IntentLogs, []string{"logs", "error logs", "kubectl logs", "tail logs"}},
	{IntentCost, []string{"cost", "price", "bill", "billing", "how much", "finops"}},
	{IntentPipeline, []string{"pipeline", "cicd", "github actions", "jenkins", "gitlab ci", "workflow"}},
	{IntentStatus, []string{"status", "health", "slo", "sli", "uptime"}},
}

// AllIntents returns every intent in classification priority order,
// followed by IntentUnknown.
func AllIntents() []Intent {
	out := make([]Intent, 0, len(cascade)+1)
	for _, c := range cascade {
		out = append(out, c.intent)
	}
	return append(out, IntentUnknown)
}

// Keywords returns the keyword set for intent, or nil for IntentUnknown.
func Keywords(intent Intent) []string {
	for _, c := range cascade {
		if c.intent == intent {
			return append([]string(nil), c.keywords...)
		}
	}
	return nil
}

// Classifier maps text to exactly one Intent.
type Classifier struct{}

// NewClassifier returns a Classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// Classify lower-cases text and returns the first intent in the cascade with
// a keyword contained in it, or IntentUnknown.
func (c *Classifier) Classify(text string) Intent {
	intent, _ := c.Explain(text)
	return intent
}

// Explain is Classify that also returns the keyword that decided the match.
func (c *Classifier) Explain(text string) (Intent, string) {
	text = strings.ToLower(text)
	for _, entry := range cascade {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.intent, kw
			}
		}
	}
	return IntentUnknown, ""
}
