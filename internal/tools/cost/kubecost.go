// Package cost reads workload cost allocation from the Kubecost API.
package cost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrNoData is returned when the allocation API has nothing for the query.
var ErrNoData = errors.New("no cost data")

// Allocation is the cost of one aggregate over the window.
type Allocation struct {
	Name      string  `json:"name"`
	CPUCost   float64 `json:"cpuCost"`
	RAMCost   float64 `json:"ramCost"`
	PVCost    float64 `json:"pvCost"`
	TotalCost float64 `json:"totalCost"`
}

// Query selects what to aggregate by.
type Query struct {
	Window    string
	Namespace string
	App       string
}

// Aggregate returns the Kubecost aggregate keyword for q.
func (q Query) Aggregate() string {
	if q.App != "" {
		return "label:app"
	}
	return "namespace"
}

// Client reports cost allocation.
type Client interface {
	Allocation(ctx context.Context, q Query) ([]Allocation, error)
}

// Kubecost implements Client against /model/allocation.
type Kubecost struct {
	base *url.URL
	hc   *http.Client
}

var _ Client = (*Kubecost)(nil)

// NewKubecost returns a client for the Kubecost server at baseURL.
func NewKubecost(baseURL string, hc *http.Client) (*Kubecost, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid kubecost url %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Kubecost{base: u, hc: hc}, nil
}

type allocationResponse struct {
	Code    int                     `json:"code"`
	Message string                  `json:"message"`
	Data    []map[string]Allocation `json:"data"`
}

// Allocation returns allocations for q sorted by total cost, highest
// first. Namespace and App filter the result.
func (k *Kubecost) Allocation(ctx context.Context, q Query) ([]Allocation, error) {
	if q.Window == "" {
		q.Window = "7d"
	}
	params := url.Values{}
	params.Set("window", q.Window)
	params.Set("aggregate", q.Aggregate())
	params.Set("accumulate", "true")
	var filters []string
	if q.Namespace != "" {
		filters = append(filters, fmt.Sprintf(`namespace:"%s"`, q.Namespace))
	}
	if q.App != "" {
		filters = append(filters, fmt.Sprintf(`label[app]:"%s"`, q.App))
	}
	if len(filters) > 0 {
		params.Set("filter", strings.Join(filters, "+"))
	}

	u := k.base.JoinPath("model", "allocation")
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build allocation request: %w", err)
	}
	resp, err := k.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query kubecost: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("kubecost returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload allocationResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode allocation response: %w", err)
	}

	var out []Allocation
	for _, set := range payload.Data {
		for key, a := range set {
			if a.Name == "" {
				a.Name = key
			}
			if strings.HasPrefix(a.Name, "__") {
				continue
			}
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalCost > out[j].TotalCost })
	return out, nil
}

// Total sums TotalCost over allocs.
func Total(allocs []Allocation) float64 {
	var sum float64
	for _, a := range allocs {
		sum += a.TotalCost
	}
	return sum
}
