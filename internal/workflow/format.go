package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/opsagent/internal/tools/kube"
	"github.com/fyrsmithlabs/opsagent/internal/tools/monitor"
)

// report collects titled output sections.
type report struct {
	sections []string
}

func (r *report) add(title, body string) {
	body = strings.TrimRight(body, "\n")
	if body == "" {
		body = "(none)"
	}
	r.sections = append(r.sections, fmt.Sprintf("[%s]\n%s", title, body))
}

func (r *report) String() string {
	return strings.Join(r.sections, "\n\n")
}

// explain appends a model explanation to raw when an Explainer is set. A
// failing model leaves the raw output intact.
func explain(ctx context.Context, req Request, topic, raw string) string {
	if req.Explainer == nil {
		return raw
	}
	text, err := req.Explainer.Explain(ctx, topic, raw)
	if err != nil || strings.TrimSpace(text) == "" {
		return raw
	}
	return raw + "\n\n[analysis]\n" + strings.TrimSpace(text)
}

func formatPods(pods []kube.PodInfo) string {
	var b strings.Builder
	for _, p := range pods {
		ready := "ready"
		if !p.Ready {
			ready = "not-ready"
		}
		fmt.Fprintf(&b, "%s %s %s restarts=%d", p.Name, p.Phase, ready, p.Restarts)
		if p.Reason != "" {
			fmt.Fprintf(&b, " reason=%s", p.Reason)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatServices(svcs []kube.ServiceInfo) string {
	var b strings.Builder
	for _, s := range svcs {
		fmt.Fprintf(&b, "%s %s %s %s\n", s.Name, s.Type, s.ClusterIP, s.Ports)
	}
	return b.String()
}

func formatAlerts(alerts []monitor.Alert) string {
	var b strings.Builder
	for _, a := range alerts {
		b.WriteString(a.Name)
		if a.Severity != "" {
			fmt.Fprintf(&b, " (%s)", a.Severity)
		}
		if a.Summary != "" {
			fmt.Fprintf(&b, ": %s", a.Summary)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// podRestarts reads restart counts from the pod list when no monitoring
// backend is configured.
func podRestarts(pods []kube.PodInfo) string {
	var b strings.Builder
	for _, p := range pods {
		if p.Restarts > 0 {
			fmt.Fprintf(&b, "%s %d\n", p.Name, p.Restarts)
		}
	}
	return b.String()
}

func formatRestarts(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for n, c := range counts {
		if c > 0 {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "%s %d\n", n, counts[n])
	}
	return b.String()
}

// tail keeps the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
