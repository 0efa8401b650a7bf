// Package monitor reads alerts and container restart counts from
// Prometheus.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// Alert is a firing Prometheus alert.
type Alert struct {
	Name     string    `json:"name"`
	Severity string    `json:"severity,omitempty"`
	Summary  string    `json:"summary,omitempty"`
	Since    time.Time `json:"since"`
}

// Client queries the monitoring backend.
type Client interface {
	FiringAlerts(ctx context.Context, namespace string) ([]Alert, error)
	Restarts(ctx context.Context, namespace, app string, window time.Duration) (map[string]int, error)
}

// Prometheus implements Client with the Prometheus HTTP API.
type Prometheus struct {
	api v1.API
	now func() time.Time
}

var _ Client = (*Prometheus)(nil)

// NewPrometheus connects to the Prometheus server at address.
func NewPrometheus(address string) (*Prometheus, error) {
	c, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	return &Prometheus{api: v1.NewAPI(c), now: time.Now}, nil
}

// FiringAlerts returns firing alerts, limited to namespace when it is set.
func (p *Prometheus) FiringAlerts(ctx context.Context, namespace string) ([]Alert, error) {
	res, err := p.api.Alerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	var out []Alert
	for _, a := range res.Alerts {
		if a.State != v1.AlertStateFiring {
			continue
		}
		if ns, ok := a.Labels["namespace"]; ok && namespace != "" && string(ns) != namespace {
			continue
		}
		out = append(out, Alert{
			Name:     string(a.Labels[model.AlertNameLabel]),
			Severity: string(a.Labels["severity"]),
			Summary:  string(a.Annotations["summary"]),
			Since:    a.ActiveAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Restarts returns container restarts per pod over window.
func (p *Prometheus) Restarts(ctx context.Context, namespace, app string, window time.Duration) (map[string]int, error) {
	if window <= 0 {
		window = time.Hour
	}
	q := restartsQuery(namespace, app, window)
	val, _, err := p.api.Query(ctx, q, p.now())
	if err != nil {
		return nil, fmt.Errorf("query restarts: %w", err)
	}
	vec, ok := val.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s", val.Type())
	}
	out := make(map[string]int, len(vec))
	for _, s := range vec {
		out[string(s.Metric["pod"])] = int(s.Value)
	}
	return out, nil
}

func restartsQuery(namespace, app string, window time.Duration) string {
	var sel []string
	if namespace != "" {
		sel = append(sel, fmt.Sprintf(`namespace=%q`, namespace))
	}
	if app != "" {
		sel = append(sel, fmt.Sprintf(`pod=~%q`, app+"-.*"))
	}
	return fmt.Sprintf(`sum by (pod) (increase(kube_pod_container_status_restarts_total{%s}[%s]))`,
		strings.Join(sel, ","), model.Duration(window))
}
