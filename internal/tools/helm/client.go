// Package helm installs, upgrades and rolls back releases from local charts.
package helm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"helm.sh/helm/v4/pkg/action"
	chartv2 "helm.sh/helm/v4/pkg/chart/v2"
	"helm.sh/helm/v4/pkg/chart/loader"
	helmcli "helm.sh/helm/v4/pkg/cli"
	v1 "helm.sh/helm/v4/pkg/release/v1"
)

// DefaultTimeout bounds install and upgrade when none is configured.
const DefaultTimeout = 5 * time.Minute

var (
	errReleaseNameRequired = errors.New("helm: release name is required")
	errChartNotFound       = errors.New("helm: chart not found")
)

// ReleaseSpec describes a release to install or upgrade from a chart
// directory.
type ReleaseSpec struct {
	Name      string
	Namespace string
	ChartPath string
	Values    map[string]any
}

// Release is the outcome of an install, upgrade or rollback.
type Release struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Revision  int    `json:"revision"`
	Status    string `json:"status"`
	Upgraded  bool   `json:"upgraded"`
}

// Client manages Helm releases.
type Client interface {
	InstallOrUpgrade(ctx context.Context, spec ReleaseSpec) (Release, error)
	Rollback(ctx context.Context, namespace, name string, revision int) error
}

// Options configure the Helm backend.
type Options struct {
	Kubeconfig  string
	KubeContext string
	Driver      string
	Timeout     time.Duration
}

// Helm implements Client with the helm v4 action package.
type Helm struct {
	opts Options
}

var _ Client = (*Helm)(nil)

// New returns a Helm backend. Connection problems surface on first use.
func New(opts Options) *Helm {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Driver == "" {
		opts.Driver = os.Getenv("HELM_DRIVER")
	}
	return &Helm{opts: opts}
}

// configure builds an action configuration bound to namespace. Helm binds
// storage to a namespace at Init time, so each call gets its own.
func (h *Helm) configure(namespace string) (*action.Configuration, error) {
	settings := helmcli.New()
	if h.opts.Kubeconfig != "" {
		settings.KubeConfig = h.opts.Kubeconfig
	}
	if h.opts.KubeContext != "" {
		settings.KubeContext = h.opts.KubeContext
	}
	if namespace != "" {
		settings.SetNamespace(namespace)
	}

	cfg := new(action.Configuration)
	if err := cfg.Init(settings.RESTClientGetter(), settings.Namespace(), h.opts.Driver); err != nil {
		return nil, fmt.Errorf("initialize helm action config: %w", err)
	}
	return cfg, nil
}

// InstallOrUpgrade upgrades spec.Name when it has history and installs it
// otherwise.
func (h *Helm) InstallOrUpgrade(ctx context.Context, spec ReleaseSpec) (Release, error) {
	if spec.Name == "" {
		return Release{}, errReleaseNameRequired
	}
	if err := ctx.Err(); err != nil {
		return Release{}, fmt.Errorf("install release: %w", err)
	}

	chart, err := LoadChart(spec.ChartPath)
	if err != nil {
		return Release{}, err
	}
	cfg, err := h.configure(spec.Namespace)
	if err != nil {
		return Release{}, err
	}

	hist := action.NewHistory(cfg)
	hist.Max = 1
	if releases, histErr := hist.Run(spec.Name); histErr == nil && len(releases) > 0 {
		up := action.NewUpgrade(cfg)
		up.Namespace = spec.Namespace
		up.Timeout = h.opts.Timeout
		out, err := up.RunWithContext(ctx, spec.Name, chart, spec.Values)
		if err != nil {
			return Release{}, fmt.Errorf("upgrade release %q: %w", spec.Name, err)
		}
		rel, err := toRelease(out)
		rel.Upgraded = true
		return rel, err
	}

	in := action.NewInstall(cfg)
	in.ReleaseName = spec.Name
	in.Namespace = spec.Namespace
	in.CreateNamespace = true
	in.Timeout = h.opts.Timeout
	out, err := in.RunWithContext(ctx, chart, spec.Values)
	if err != nil {
		return Release{}, fmt.Errorf("install release %q: %w", spec.Name, err)
	}
	return toRelease(out)
}

// Rollback returns name to revision, or to the previous revision when
// revision is zero.
func (h *Helm) Rollback(ctx context.Context, namespace, name string, revision int) error {
	if name == "" {
		return errReleaseNameRequired
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rollback release: %w", err)
	}
	cfg, err := h.configure(namespace)
	if err != nil {
		return err
	}
	rb := action.NewRollback(cfg)
	rb.Version = revision
	if err := rb.Run(name); err != nil {
		return fmt.Errorf("rollback release %q: %w", name, err)
	}
	return nil
}

// LoadChart loads a chart directory or archive.
func LoadChart(path string) (*chartv2.Chart, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", errChartNotFound, path)
	}
	loaded, err := loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load chart %s: %w", path, err)
	}
	chart, ok := loaded.(*chartv2.Chart)
	if !ok {
		return nil, fmt.Errorf("unsupported chart type %T", loaded)
	}
	return chart, nil
}

// ChartPath locates the chart for app under dir.
func ChartPath(dir, app string) string {
	return filepath.Join(dir, app)
}

// ParseRevision reads a release revision from a version entity such as
// "v3". It returns 0 (previous revision) when version is empty or has a
// minor part.
func ParseRevision(version string) int {
	v := strings.TrimPrefix(strings.ToLower(version), "v")
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func toRelease(out any) (Release, error) {
	rel, ok := out.(*v1.Release)
	if !ok || rel == nil {
		return Release{}, fmt.Errorf("unexpected release type: %T", out)
	}
	r := Release{Name: rel.Name, Namespace: rel.Namespace, Revision: rel.Version}
	if rel.Info != nil {
		r.Status = rel.Info.Status.String()
	}
	return r, nil
}
