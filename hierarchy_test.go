package probgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHierarchy(t *testing.T) {
	h, err := ParseHierarchy([]byte(`
web:
  sample_count: 4
  children:
    svelte: {sample_count: 2}
`))
	require.NoError(t, err)

	parent, ok := h.Parent("svelte")
	require.True(t, ok)
	assert.Equal(t, "web", parent)
	assert.Equal(t, 2, h.SampleCount("svelte"))

	_, err = ParseHierarchy([]byte(""))
	assert.Error(t, err)

	_, err = ParseHierarchy([]byte("not: [valid: yaml"))
	assert.Error(t, err)
}

func TestHierarchyParent(t *testing.T) {
	h := DefaultHierarchy()

	tests := []struct {
		name       string
		tech       string
		wantParent string
		wantOK     bool
	}{
		{"leaf tech", "react", "frontend", true},
		{"case insensitive", "React", "frontend", true},
		{"another branch", "redis", "database", true},
		{"root has no parent", "frontend", "", false},
		{"unknown tech", "cobol", "", false},
		{"blank", "  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, ok := h.Parent(tt.tech)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantParent, parent)
		})
	}
}

func TestHierarchyLeaves(t *testing.T) {
	h := DefaultHierarchy()

	frontend := h.Leaves("frontend")
	assert.ElementsMatch(t, []string{"react", "vue", "javascript", "typescript", "css"}, frontend)

	all := h.Leaves("")
	assert.Greater(t, len(all), len(frontend))
	assert.NotContains(t, all, "frontend")
}
