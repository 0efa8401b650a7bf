package helm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v1 "helm.sh/helm/v4/pkg/release/v1"
)

func TestParseRevision(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"v3", 3},
		{"V12", 12},
		{"7", 7},
		{"v1.2", 0},
		{"", 0},
		{"v0", 0},
		{"latest", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRevision(tt.in))
		})
	}
}

func TestLoadChart(t *testing.T) {
	t.Run("directory chart", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nginx")
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "templates"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "Chart.yaml"),
			[]byte("apiVersion: v2\nname: nginx\nversion: 0.1.0\n"), 0o644))

		chart, err := LoadChart(dir)
		require.NoError(t, err)
		assert.Equal(t, "nginx", chart.Metadata.Name)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadChart(filepath.Join(t.TempDir(), "absent"))
		require.ErrorIs(t, err, errChartNotFound)
	})
}

func TestChartPath(t *testing.T) {
	assert.Equal(t, filepath.Join("charts", "api"), ChartPath("charts", "api"))
}

func TestInstallOrUpgrade_RequiresName(t *testing.T) {
	_, err := New(Options{}).InstallOrUpgrade(context.Background(), ReleaseSpec{})
	require.ErrorIs(t, err, errReleaseNameRequired)

	require.ErrorIs(t, New(Options{}).Rollback(context.Background(), "default", "", 0), errReleaseNameRequired)
}

func TestToRelease(t *testing.T) {
	rel, err := toRelease(&v1.Release{Name: "api", Namespace: "prod", Version: 4})
	require.NoError(t, err)
	assert.Equal(t, Release{Name: "api", Namespace: "prod", Revision: 4}, rel)

	_, err = toRelease("nope")
	require.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	h := New(Options{})
	assert.Equal(t, DefaultTimeout, h.opts.Timeout)
}
