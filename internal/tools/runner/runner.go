// Package runner drives external CLIs: terraform for infrastructure
// workflows and cloud CLIs for cluster credentials.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrUnsupportedProvider is returned for clouds without a credentials command.
var ErrUnsupportedProvider = errors.New("unsupported cloud provider")

// Runner executes a command in dir and returns its stdout.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// Exec runs commands with os/exec.
type Exec struct{}

// Run implements Runner.
func (Exec) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s failed: %w, stderr: %s",
			name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Terraform applies and destroys the configuration in Dir.
type Terraform struct {
	Binary string
	Dir    string
	Runner Runner
}

// NewTerraform returns a Terraform using os/exec.
func NewTerraform(binary, dir string) *Terraform {
	if binary == "" {
		binary = "terraform"
	}
	return &Terraform{Binary: binary, Dir: dir, Runner: Exec{}}
}

// Apply runs init then apply without prompting and returns the apply output.
func (t *Terraform) Apply(ctx context.Context) (string, error) {
	if err := t.init(ctx); err != nil {
		return "", err
	}
	return t.Runner.Run(ctx, t.Dir, t.Binary, "apply", "-auto-approve", "-input=false", "-no-color")
}

// Destroy runs init then destroy without prompting. Callers gate it.
func (t *Terraform) Destroy(ctx context.Context) (string, error) {
	if err := t.init(ctx); err != nil {
		return "", err
	}
	return t.Runner.Run(ctx, t.Dir, t.Binary, "destroy", "-auto-approve", "-input=false", "-no-color")
}

func (t *Terraform) init(ctx context.Context) error {
	if _, err := os.Stat(t.Dir); err != nil {
		return fmt.Errorf("terraform dir %s: %w", t.Dir, err)
	}
	_, err := t.Runner.Run(ctx, t.Dir, t.Binary, "init", "-input=false", "-no-color")
	return err
}

// Cloud fetches cluster credentials through the provider CLI.
type Cloud struct {
	Runner Runner
}

// NewCloud returns a Cloud using os/exec.
func NewCloud() *Cloud {
	return &Cloud{Runner: Exec{}}
}

// UpdateKubeconfig merges credentials for cluster into the local
// kubeconfig. provider is aws or gcp; empty means aws.
func (c *Cloud) UpdateKubeconfig(ctx context.Context, provider, cluster string) (string, error) {
	if cluster == "" {
		return "", errors.New("cluster name is required")
	}
	switch provider {
	case "", "aws":
		return c.Runner.Run(ctx, "", "aws", "eks", "update-kubeconfig", "--name", cluster, "--no-cli-pager")
	case "gcp":
		return c.Runner.Run(ctx, "", "gcloud", "container", "clusters", "get-credentials", cluster)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}
