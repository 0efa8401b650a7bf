// Package cicd reads pipeline runs from GitHub Actions and detects the
// repository a working directory belongs to.
package cicd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/opsagent/internal/config"
)

// ErrInvalidRepo is returned for repository references that are not owner/name.
var ErrInvalidRepo = errors.New("repository must be owner/name")

// Run summarises one workflow run.
type Run struct {
	ID         int64  `json:"id"`
	Number     int    `json:"number"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	Branch     string `json:"branch"`
	URL        string `json:"url"`
}

// Failed reports whether the run finished unsuccessfully.
func (r Run) Failed() bool {
	switch r.Conclusion {
	case "failure", "timed_out", "startup_failure", "cancelled":
		return true
	}
	return false
}

// Job is a failed job of a run with the names of its failed steps.
type Job struct {
	Name        string   `json:"name"`
	Conclusion  string   `json:"conclusion"`
	FailedSteps []string `json:"failed_steps,omitempty"`
}

// Client lists pipeline runs.
type Client interface {
	RecentRuns(ctx context.Context, repo string, limit int) ([]Run, error)
	FailedJobs(ctx context.Context, repo string, runID int64) ([]Job, error)
}

// GitHub implements Client on the GitHub Actions API.
type GitHub struct {
	gh *github.Client
}

var _ Client = (*GitHub)(nil)

// NewGitHub creates a GitHub Actions client. The token is optional for
// public repositories. baseURL overrides the API endpoint.
func NewGitHub(ctx context.Context, token config.Secret, baseURL string) (*GitHub, error) {
	var hc *http.Client
	if token.IsSet() {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
		hc = oauth2.NewClient(ctx, ts)
	}
	gh := github.NewClient(hc)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		gh.BaseURL = u
	}
	return &GitHub{gh: gh}, nil
}

// SplitRepo splits "owner/name".
func SplitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepo, repo)
	}
	return owner, name, nil
}

// RecentRuns returns up to limit runs, newest first.
func (g *GitHub) RecentRuns(ctx context.Context, repo string, limit int) ([]Run, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 5
	}
	runs, _, err := g.gh.Actions.ListRepositoryWorkflowRuns(ctx, owner, name, &github.ListWorkflowRunsOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("list workflow runs for %s: %w", repo, err)
	}

	out := make([]Run, 0, len(runs.WorkflowRuns))
	for _, r := range runs.WorkflowRuns {
		out = append(out, Run{
			ID:         r.GetID(),
			Number:     r.GetRunNumber(),
			Name:       r.GetName(),
			Status:     r.GetStatus(),
			Conclusion: r.GetConclusion(),
			Branch:     r.GetHeadBranch(),
			URL:        r.GetHTMLURL(),
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// FailedJobs returns the jobs of runID that did not succeed.
func (g *GitHub) FailedJobs(ctx context.Context, repo string, runID int64) ([]Job, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	jobs, _, err := g.gh.Actions.ListWorkflowJobs(ctx, owner, name, runID, &github.ListWorkflowJobsOptions{})
	if err != nil {
		return nil, fmt.Errorf("list jobs for run %d: %w", runID, err)
	}

	var out []Job
	for _, j := range jobs.Jobs {
		c := j.GetConclusion()
		if c == "" || c == "success" || c == "skipped" {
			continue
		}
		job := Job{Name: j.GetName(), Conclusion: c}
		for _, s := range j.Steps {
			if s.GetConclusion() == "failure" {
				job.FailedSteps = append(job.FailedSteps, s.GetName())
			}
		}
		out = append(out, job)
	}
	return out, nil
}
