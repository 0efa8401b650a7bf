package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/opsagent/internal/tools/cicd"
	"github.com/fyrsmithlabs/opsagent/internal/tools/cost"
	"github.com/fyrsmithlabs/opsagent/internal/tools/docker"
	"github.com/fyrsmithlabs/opsagent/internal/tools/helm"
	"github.com/fyrsmithlabs/opsagent/internal/tools/monitor"
)

type fakeDocker struct {
	containers map[string][]docker.ContainerInfo
	runErr     error
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{containers: map[string][]docker.ContainerInfo{}}
}

func (f *fakeDocker) Run(ctx context.Context, app, image string, replicas int) ([]docker.ContainerInfo, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	var out []docker.ContainerInfo
	for i := 1; i <= replicas; i++ {
		out = append(out, docker.ContainerInfo{Name: app, Image: image, State: "running", Replica: i})
	}
	f.containers[app] = out
	return out, nil
}

func (f *fakeDocker) Scale(ctx context.Context, app string, replicas int) (int, error) {
	cur := f.containers[app]
	if len(cur) == 0 {
		return 0, errors.New("no containers found for " + app)
	}
	before := len(cur)
	_, err := f.Run(ctx, app, cur[0].Image, replicas)
	return before, err
}

func (f *fakeDocker) Remove(ctx context.Context, app string) (int, error) {
	n := len(f.containers[app])
	delete(f.containers, app)
	return n, nil
}

func (f *fakeDocker) List(ctx context.Context, app string) ([]docker.ContainerInfo, error) {
	return f.containers[app], nil
}

type fakeHelm struct {
	installed  []helm.ReleaseSpec
	rollbacks  []int
	revision   int
	upgraded   bool
	installErr error
}

func (f *fakeHelm) InstallOrUpgrade(ctx context.Context, spec helm.ReleaseSpec) (helm.Release, error) {
	if f.installErr != nil {
		return helm.Release{}, f.installErr
	}
	f.installed = append(f.installed, spec)
	f.revision++
	return helm.Release{Name: spec.Name, Namespace: spec.Namespace, Revision: f.revision, Status: "deployed", Upgraded: f.upgraded}, nil
}

func (f *fakeHelm) Rollback(ctx context.Context, namespace, name string, revision int) error {
	f.rollbacks = append(f.rollbacks, revision)
	return nil
}

type fakeCICD struct {
	runs []cicd.Run
	jobs []cicd.Job
	repo string
}

func (f *fakeCICD) RecentRuns(ctx context.Context, repo string, limit int) ([]cicd.Run, error) {
	f.repo = repo
	return f.runs, nil
}

func (f *fakeCICD) FailedJobs(ctx context.Context, repo string, runID int64) ([]cicd.Job, error) {
	return f.jobs, nil
}

type fakeMonitor struct {
	alerts   []monitor.Alert
	restarts map[string]int
	err      error
}

func (f *fakeMonitor) FiringAlerts(ctx context.Context, namespace string) ([]monitor.Alert, error) {
	return f.alerts, f.err
}

func (f *fakeMonitor) Restarts(ctx context.Context, namespace, app string, window time.Duration) (map[string]int, error) {
	return f.restarts, f.err
}

type fakeCost struct {
	allocs []cost.Allocation
	query  cost.Query
}

func (f *fakeCost) Allocation(ctx context.Context, q cost.Query) ([]cost.Allocation, error) {
	f.query = q
	if len(f.allocs) == 0 {
		return nil, cost.ErrNoData
	}
	return f.allocs, nil
}

type fakeTerraform struct {
	applied, destroyed int
}

func (f *fakeTerraform) Apply(ctx context.Context) (string, error) {
	f.applied++
	return "Apply complete! Resources: 3 added, 0 changed, 0 destroyed.", nil
}

func (f *fakeTerraform) Destroy(ctx context.Context) (string, error) {
	f.destroyed++
	return "Destroy complete! Resources: 3 destroyed.", nil
}

type fakeCloud struct {
	calls []string
}

func (f *fakeCloud) UpdateKubeconfig(ctx context.Context, provider, cluster string) (string, error) {
	f.calls = append(f.calls, provider+":"+cluster)
	return "Updated context", nil
}

type approver bool

func (a approver) ApproveDestroy(ctx context.Context, target string) bool { return bool(a) }

type fakeExplainer struct {
	topic string
	err   error
}

func (f *fakeExplainer) Explain(ctx context.Context, topic, text string) (string, error) {
	f.topic = topic
	if f.err != nil {
		return "", f.err
	}
	return "looks like a crash loop", nil
}
