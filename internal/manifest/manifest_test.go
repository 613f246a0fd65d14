package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	t.Parallel()

	deps := map[string]string{"left-pad": "1.0.0", "lit-html": "^0.10.0", "lodash": "*"}

	tests := []struct {
		name   string
		only   []string
		ignore []string
		want   map[string]string
	}{
		{"all", nil, nil, deps},
		{"only", []string{"lit-html"}, nil, map[string]string{"lit-html": "^0.10.0"}},
		{"ignore", nil, []string{"lodash"}, map[string]string{"left-pad": "1.0.0", "lit-html": "^0.10.0"}},
		{"only and ignore", []string{"lodash", "left-pad"}, []string{"lodash"}, map[string]string{"left-pad": "1.0.0"}},
		{"only unknown", []string{"react"}, nil, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Filter(deps, tt.only, tt.ignore))
		})
	}
}

func TestAssetDependencies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"),
		[]byte(`{"name":"app","dependencies":{"left-pad":"1.0.0","lodash":"*"}}`), 0o644))

	deps, err := AssetDependencies(dir, nil, []string{"lodash"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"left-pad": "1.0.0"}, deps)

	_, err = AssetDependencies(t.TempDir(), nil, nil)
	assert.Error(t, err)
}
