// Package docker is the local container backend: deploy, scale and roll
// back an app as a set of labelled containers.
package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	appLabel     = "opsagent.app"
	replicaLabel = "opsagent.replica"
)

// API is the part of the Docker Engine client used here.
type API interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// ContainerInfo summarises one managed container.
type ContainerInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	State   string `json:"state"`
	Replica int    `json:"replica"`
}

// Client manages app containers.
type Client interface {
	Run(ctx context.Context, app, image string, replicas int) ([]ContainerInfo, error)
	Scale(ctx context.Context, app string, replicas int) (before int, err error)
	Remove(ctx context.Context, app string) (int, error)
	List(ctx context.Context, app string) ([]ContainerInfo, error)
}

// Docker implements Client on the Engine API.
type Docker struct {
	api API
}

var _ Client = (*Docker)(nil)

// New wraps an API implementation.
func New(api API) *Docker {
	return &Docker{api: api}
}

// NewFromEnv connects using DOCKER_HOST and friends, or host when set.
func NewFromEnv(host string) (*Docker, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return New(c), nil
}

func containerName(app string, replica int) string {
	return fmt.Sprintf("opsagent-%s-%d", app, replica)
}

// Run pulls image and starts replicas containers for app, replacing any
// containers already running for it.
func (d *Docker) Run(ctx context.Context, app, img string, replicas int) ([]ContainerInfo, error) {
	if replicas < 1 {
		replicas = 1
	}
	if err := d.pull(ctx, img); err != nil {
		return nil, err
	}
	if _, err := d.Remove(ctx, app); err != nil {
		return nil, err
	}

	out := make([]ContainerInfo, 0, replicas)
	for i := 1; i <= replicas; i++ {
		info, err := d.start(ctx, app, img, i)
		if err != nil {
			return out, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (d *Docker) pull(ctx context.Context, img string) error {
	reader, err := d.api.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer func() { _ = reader.Close() }()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("read pull output: %w", err)
	}
	return nil
}

func (d *Docker) start(ctx context.Context, app, img string, replica int) (ContainerInfo, error) {
	name := containerName(app, replica)
	resp, err := d.api.ContainerCreate(ctx,
		&container.Config{
			Image: img,
			Labels: map[string]string{
				appLabel:     app,
				replicaLabel: strconv.Itoa(replica),
			},
		},
		&container.HostConfig{
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		},
		nil, nil, name)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("create container %s: %w", name, err)
	}
	if err := d.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return ContainerInfo{}, fmt.Errorf("start container %s: %w", name, err)
	}
	return ContainerInfo{ID: resp.ID, Name: name, Image: img, State: "running", Replica: replica}, nil
}

// List returns the containers labelled for app, lowest replica first.
func (d *Docker) List(ctx context.Context, app string) ([]ContainerInfo, error) {
	args := filters.NewArgs()
	if app != "" {
		args.Add("label", appLabel+"="+app)
	} else {
		args.Add("label", appLabel)
	}
	summaries, err := d.api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]ContainerInfo, 0, len(summaries))
	for _, s := range summaries {
		replica, _ := strconv.Atoi(s.Labels[replicaLabel])
		name := ""
		if len(s.Names) > 0 {
			name = strings.TrimPrefix(s.Names[0], "/")
		}
		out = append(out, ContainerInfo{
			ID:      s.ID,
			Name:    name,
			Image:   s.Image,
			State:   string(s.State),
			Replica: replica,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Replica < out[j].Replica })
	return out, nil
}

// Scale starts or removes containers until app has replicas of them. New
// replicas reuse the image of the existing ones.
func (d *Docker) Scale(ctx context.Context, app string, replicas int) (int, error) {
	current, err := d.List(ctx, app)
	if err != nil {
		return 0, err
	}
	before := len(current)
	if before == 0 {
		return 0, fmt.Errorf("no containers found for %s", app)
	}

	for len(current) > replicas {
		last := current[len(current)-1]
		if err := d.removeOne(ctx, last); err != nil {
			return before, err
		}
		current = current[:len(current)-1]
	}
	if len(current) >= replicas {
		return before, nil
	}

	img := current[0].Image
	next := current[len(current)-1].Replica + 1
	for n := len(current); n < replicas; n++ {
		if _, err := d.start(ctx, app, img, next); err != nil {
			return before, err
		}
		next++
	}
	return before, nil
}

// Remove stops and removes every container for app and returns the count.
func (d *Docker) Remove(ctx context.Context, app string) (int, error) {
	current, err := d.List(ctx, app)
	if err != nil {
		return 0, err
	}
	for _, c := range current {
		if err := d.removeOne(ctx, c); err != nil {
			return 0, err
		}
	}
	return len(current), nil
}

func (d *Docker) removeOne(ctx context.Context, c ContainerInfo) error {
	if strings.EqualFold(c.State, "running") {
		if err := d.api.ContainerStop(ctx, c.ID, container.StopOptions{}); err != nil {
			return fmt.Errorf("stop container %s: %w", c.Name, err)
		}
	}
	if err := d.api.ContainerRemove(ctx, c.ID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("remove container %s: %w", c.Name, err)
	}
	return nil
}
