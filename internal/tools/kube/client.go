// Package kube is the Kubernetes backend for the deploy, rollback, scale,
// logs, debug and cluster_health workflows.
package kube

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"
)

const (
	// RevisionAnnotation is the deployment controller's revision counter.
	RevisionAnnotation = "deployment.kubernetes.io/revision"

	appLabel       = "app"
	managedByLabel = "app.kubernetes.io/managed-by"
	managedBy      = "opsagent"
	podHashLabel   = "pod-template-hash"
)

var (
	// ErrNoPreviousRevision is returned by RolloutUndo when there is nothing
	// to roll back to.
	ErrNoPreviousRevision = errors.New("no previous revision")
	// ErrRevisionNotFound is returned by RolloutUndo for an unknown revision.
	ErrRevisionNotFound = errors.New("revision not found")
)

// DeploymentSpec describes a desired Deployment.
type DeploymentSpec struct {
	Name      string
	Namespace string
	Image     string
	// Replicas is left unchanged on update when nil, and means 1 on create.
	Replicas *int32
}

// Change reports what ApplyDeployment did.
type Change struct {
	Created  bool
	Image    string
	Replicas int32
}

// PodInfo summarises one pod.
type PodInfo struct {
	Name     string `json:"name"`
	Phase    string `json:"phase"`
	Ready    bool   `json:"ready"`
	Restarts int32  `json:"restarts"`
	Reason   string `json:"reason,omitempty"`
}

// Healthy reports whether the pod is running and ready, or finished.
func (p PodInfo) Healthy() bool {
	if p.Phase == string(corev1.PodSucceeded) {
		return true
	}
	return p.Phase == string(corev1.PodRunning) && p.Ready && p.Reason == ""
}

// ServiceInfo summarises one service.
type ServiceInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	ClusterIP string `json:"cluster_ip"`
	Ports     string `json:"ports"`
}

// Client is the subset of cluster operations the workflows use.
type Client interface {
	ApplyDeployment(ctx context.Context, spec DeploymentSpec) (Change, error)
	Scale(ctx context.Context, namespace, name string, replicas int32) (int32, error)
	RolloutUndo(ctx context.Context, namespace, name string, toRevision int64) (int64, error)
	ListPods(ctx context.Context, namespace, app string) ([]PodInfo, error)
	ListServices(ctx context.Context, namespace string) ([]ServiceInfo, error)
	Logs(ctx context.Context, namespace, pod string, tail int64) (string, error)
}

// Kubernetes implements Client over client-go.
type Kubernetes struct {
	cs kubernetes.Interface
}

var _ Client = (*Kubernetes)(nil)

// New wraps an existing clientset.
func New(cs kubernetes.Interface) *Kubernetes {
	return &Kubernetes{cs: cs}
}

// NewFromKubeconfig builds a client from a kubeconfig path and optional
// context. An empty path uses the standard loading rules (KUBECONFIG, then
// ~/.kube/config).
func NewFromKubeconfig(kubeconfig, kubeContext string) (*Kubernetes, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{}
	if kubeContext != "" {
		overrides.CurrentContext = kubeContext
	}

	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return New(cs), nil
}

func namespaceOrDefault(ns string) string {
	if ns == "" {
		return metav1.NamespaceDefault
	}
	return ns
}

// ApplyDeployment creates the deployment or updates its image and replica
// count.
func (k *Kubernetes) ApplyDeployment(ctx context.Context, spec DeploymentSpec) (Change, error) {
	ns := namespaceOrDefault(spec.Namespace)
	deployments := k.cs.AppsV1().Deployments(ns)

	var change Change
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		existing, err := deployments.Get(ctx, spec.Name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			d := newDeployment(ns, spec)
			if _, err := deployments.Create(ctx, d, metav1.CreateOptions{}); err != nil {
				return err
			}
			change = Change{Created: true, Image: spec.Image, Replicas: *d.Spec.Replicas}
			return nil
		}
		if err != nil {
			return err
		}

		containers := existing.Spec.Template.Spec.Containers
		if spec.Image != "" && len(containers) > 0 {
			containers[0].Image = spec.Image
		}
		if spec.Replicas != nil {
			r := *spec.Replicas
			existing.Spec.Replicas = &r
		}
		updated, err := deployments.Update(ctx, existing, metav1.UpdateOptions{})
		if err != nil {
			return err
		}
		change = Change{Image: firstImage(updated), Replicas: replicasOf(updated)}
		return nil
	})
	if err != nil {
		return Change{}, fmt.Errorf("apply deployment %s/%s: %w", ns, spec.Name, err)
	}
	return change, nil
}

func newDeployment(ns string, spec DeploymentSpec) *appsv1.Deployment {
	replicas := int32(1)
	if spec.Replicas != nil {
		replicas = *spec.Replicas
	}
	image := spec.Image
	if image == "" {
		image = spec.Name
	}
	labels := map[string]string{appLabel: spec.Name}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: ns,
			Labels:    map[string]string{appLabel: spec.Name, managedByLabel: managedBy},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: spec.Name, Image: image}},
				},
			},
		},
	}
}

func firstImage(d *appsv1.Deployment) string {
	if c := d.Spec.Template.Spec.Containers; len(c) > 0 {
		return c[0].Image
	}
	return ""
}

func replicasOf(d *appsv1.Deployment) int32 {
	if d.Spec.Replicas == nil {
		return 1
	}
	return *d.Spec.Replicas
}

// Scale sets the replica count and returns the previous one.
func (k *Kubernetes) Scale(ctx context.Context, namespace, name string, replicas int32) (int32, error) {
	ns := namespaceOrDefault(namespace)
	deployments := k.cs.AppsV1().Deployments(ns)

	var previous int32
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		d, err := deployments.Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		previous = replicasOf(d)
		d.Spec.Replicas = &replicas
		_, err = deployments.Update(ctx, d, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("scale deployment %s/%s: %w", ns, name, err)
	}
	return previous, nil
}

// RolloutUndo restores the pod template of an earlier ReplicaSet owned by
// the deployment. toRevision 0 selects the newest revision older than the
// current one. It returns the revision that was restored.
func (k *Kubernetes) RolloutUndo(ctx context.Context, namespace, name string, toRevision int64) (int64, error) {
	ns := namespaceOrDefault(namespace)
	deployments := k.cs.AppsV1().Deployments(ns)

	d, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("get deployment %s/%s: %w", ns, name, err)
	}
	selector, err := metav1.LabelSelectorAsSelector(d.Spec.Selector)
	if err != nil {
		return 0, fmt.Errorf("deployment %s/%s selector: %w", ns, name, err)
	}
	rsList, err := k.cs.AppsV1().ReplicaSets(ns).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return 0, fmt.Errorf("list replicasets: %w", err)
	}

	current := revisionOf(d.Annotations)
	target, err := pickRevision(d, rsList.Items, current, toRevision)
	if err != nil {
		return 0, fmt.Errorf("rollback %s/%s: %w", ns, name, err)
	}

	template := *target.Spec.Template.DeepCopy()
	delete(template.Labels, podHashLabel)

	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		latest, err := deployments.Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		latest.Spec.Template = template
		_, err = deployments.Update(ctx, latest, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("rollback %s/%s: %w", ns, name, err)
	}
	return revisionOf(target.Annotations), nil
}

func revisionOf(annotations map[string]string) int64 {
	n, err := strconv.ParseInt(annotations[RevisionAnnotation], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func pickRevision(d *appsv1.Deployment, sets []appsv1.ReplicaSet, current, want int64) (*appsv1.ReplicaSet, error) {
	owned := make([]*appsv1.ReplicaSet, 0, len(sets))
	for i := range sets {
		if metav1.IsControlledBy(&sets[i], d) {
			owned = append(owned, &sets[i])
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return revisionOf(owned[i].Annotations) > revisionOf(owned[j].Annotations)
	})

	for _, rs := range owned {
		rev := revisionOf(rs.Annotations)
		if want > 0 && rev == want {
			return rs, nil
		}
		if want == 0 && rev > 0 && rev < current {
			return rs, nil
		}
	}
	if want > 0 {
		return nil, fmt.Errorf("%w: %d", ErrRevisionNotFound, want)
	}
	return nil, ErrNoPreviousRevision
}

// ListPods lists pods in namespace, or in every namespace when it is empty,
// filtered by the app label when app is set.
func (k *Kubernetes) ListPods(ctx context.Context, namespace, app string) ([]PodInfo, error) {
	ns := namespace
	opts := metav1.ListOptions{}
	if app != "" {
		opts.LabelSelector = appLabel + "=" + app
	}
	pods, err := k.cs.CoreV1().Pods(ns).List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list pods in %s: %w", ns, err)
	}

	out := make([]PodInfo, 0, len(pods.Items))
	for _, p := range pods.Items {
		out = append(out, podInfo(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func podInfo(p corev1.Pod) PodInfo {
	info := PodInfo{Name: p.Name, Phase: string(p.Status.Phase), Ready: len(p.Status.ContainerStatuses) > 0}
	for _, cs := range p.Status.ContainerStatuses {
		info.Restarts += cs.RestartCount
		if !cs.Ready {
			info.Ready = false
		}
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" && info.Reason == "" {
			info.Reason = cs.State.Waiting.Reason
		}
	}
	return info
}

// ListServices lists services in namespace, or in every namespace when it
// is empty.
func (k *Kubernetes) ListServices(ctx context.Context, namespace string) ([]ServiceInfo, error) {
	ns := namespace
	svcs, err := k.cs.CoreV1().Services(ns).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list services in %s: %w", ns, err)
	}
	out := make([]ServiceInfo, 0, len(svcs.Items))
	for _, s := range svcs.Items {
		ports := make([]string, 0, len(s.Spec.Ports))
		for _, p := range s.Spec.Ports {
			ports = append(ports, fmt.Sprintf("%d/%s", p.Port, p.Protocol))
		}
		out = append(out, ServiceInfo{
			Name:      s.Name,
			Type:      string(s.Spec.Type),
			ClusterIP: s.Spec.ClusterIP,
			Ports:     strings.Join(ports, ","),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Logs returns the last tail lines of the pod's first container.
func (k *Kubernetes) Logs(ctx context.Context, namespace, pod string, tail int64) (string, error) {
	ns := namespaceOrDefault(namespace)
	opts := &corev1.PodLogOptions{}
	if tail > 0 {
		opts.TailLines = &tail
	}
	raw, err := k.cs.CoreV1().Pods(ns).GetLogs(pod, opts).DoRaw(ctx)
	if err != nil {
		return "", fmt.Errorf("logs %s/%s: %w", ns, pod, err)
	}
	return string(raw), nil
}
