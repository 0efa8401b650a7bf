package cicd

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
)

// ErrNoRepo is returned when no GitHub repository can be found.
var ErrNoRepo = errors.New("no github repository detected")

var (
	sshRemote   = regexp.MustCompile(`git@github\.com:([^/]+)/([^/]+?)(?:\.git)?/?$`)
	httpsRemote = regexp.MustCompile(`github\.com/([^/]+)/([^/]+?)(?:\.git)?/?$`)
)

// DetectRepo returns owner/name from the origin remote of the git
// repository containing path.
func DetectRepo(path string) (string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrNoRepo, path, err)
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoRepo, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", ErrNoRepo
	}
	if slug := ParseRemote(urls[0]); slug != "" {
		return slug, nil
	}
	return "", fmt.Errorf("%w: origin %s is not on github", ErrNoRepo, urls[0])
}

// ParseRemote extracts owner/name from a GitHub remote URL.
// Supports git@github.com:owner/repo.git and https://github.com/owner/repo.git.
func ParseRemote(url string) string {
	url = strings.TrimSpace(url)
	for _, re := range []*regexp.Regexp{sshRemote, httpsRemote} {
		if m := re.FindStringSubmatch(url); len(m) == 3 {
			return m[1] + "/" + m[2]
		}
	}
	return ""
}

// ResolveRepo picks the repository for a pipeline lookup: an explicit
// reference, then the configured default, then the origin of path.
func ResolveRepo(explicit, fallback, path string) (string, error) {
	for _, r := range []string{explicit, fallback} {
		if r != "" {
			if _, _, err := SplitRepo(r); err != nil {
				return "", err
			}
			return r, nil
		}
	}
	if path == "" {
		return "", ErrNoRepo
	}
	return DetectRepo(path)
}
