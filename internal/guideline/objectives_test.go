package guideline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinObjectivesComplete(t *testing.T) {
	o := BuiltinObjectives()

	for _, obj := range []Objective{ObjectiveExplore, ObjectiveIdeate, ObjectiveValidate} {
		assert.True(t, o.Valid(obj), "built-in catalogue must include %s", obj)
		spec := o.Lookup(obj)
		assert.Equal(t, obj, spec.Objective)
		assert.NotEmpty(t, spec.Instruction)
		assert.NotEmpty(t, spec.Examples)
	}
	assert.False(t, o.Valid("made-up"))
}

func TestLookupFallsBackToDefault(t *testing.T) {
	o := BuiltinObjectives()
	spec := o.Lookup("made-up")
	assert.Equal(t, DefaultObjective, spec.Objective)
}

func TestLoadObjectivesFromDir(t *testing.T) {
	dir := t.TempDir()
	body := `# Validate

State whether the findings support the hypothesis.

## Examples

- Is it true that users prefer the app?
- Do users abandon carts over shipping?
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "validate-hypothesis.md"), []byte(body), 0o644))

	o, err := LoadObjectives(dir)
	require.NoError(t, err)

	require.True(t, o.Valid(ObjectiveValidate))
	spec := o.Lookup(ObjectiveValidate)
	assert.Equal(t, "State whether the findings support the hypothesis.", spec.Instruction)
	require.Len(t, spec.Examples, 2)
	assert.Equal(t, "Is it true that users prefer the app?", spec.Examples[0])
}

func TestLoadObjectivesMissingDirUsesBuiltin(t *testing.T) {
	o, err := LoadObjectives(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.True(t, o.Valid(ObjectiveExplore))
	assert.True(t, o.Valid(ObjectiveIdeate))
	assert.True(t, o.Valid(ObjectiveValidate))
}

func TestLoadObjectivesEmptyDirUsesBuiltin(t *testing.T) {
	o, err := LoadObjectives(t.TempDir())
	require.NoError(t, err)
	assert.Len(t, o.Specs(), len(BuiltinObjectives().Specs()))
}
