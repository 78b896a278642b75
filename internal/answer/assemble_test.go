package answer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiscovery/pdiscovery/internal/guideline"
	"github.com/pdiscovery/pdiscovery/internal/knowledge"
)

func guidelineSet(t *testing.T, contents ...string) *guideline.Set {
	t.Helper()
	dir := t.TempDir()
	for i, c := range contents {
		path := filepath.Join(dir, fmt.Sprintf("%02d-guideline.md", i))
		require.NoError(t, os.WriteFile(path, []byte(c), 0o644))
	}
	set, err := guideline.LoadSet(dir)
	require.NoError(t, err)
	return set
}

func source(id, title, content string, sim float32) knowledge.Result {
	return knowledge.Result{
		Entry: knowledge.Entry{
			ID:         id,
			DocumentID: "doc_" + id,
			Content:    content,
			Title:      title,
			SourceName: title + ".md",
		},
		Similarity: sim,
	}
}

func TestAssembleIncludesGuidelinesVerbatim(t *testing.T) {
	g1 := "# Tone\n\nAlways answer in the user's language."
	g2 := "# Evidence\n\nNever assert beyond the cited research."
	a := NewAssembler(guidelineSet(t, g1, g2), guideline.BuiltinObjectives(), 24000)

	prompt := a.Assemble("What did we learn?", guideline.ObjectiveExplore, nil)

	assert.Contains(t, prompt.User, g1, "guidelines must appear verbatim")
	assert.Contains(t, prompt.User, g2, "guidelines must appear verbatim")
	idx1 := strings.Index(prompt.User, g1)
	idx2 := strings.Index(prompt.User, g2)
	assert.Less(t, idx1, idx2, "guidelines keep filename order")
}

func TestAssembleIncludesQuestionLiterally(t *testing.T) {
	a := NewAssembler(guidelineSet(t), guideline.BuiltinObjectives(), 24000)
	question := "Quais são os principais desafios na personalização da Home?"

	prompt := a.Assemble(question, guideline.ObjectiveExplore, nil)
	assert.Contains(t, prompt.User, question)
}

func TestAssembleMarksSourcesInRelevanceOrder(t *testing.T) {
	a := NewAssembler(guidelineSet(t), guideline.BuiltinObjectives(), 24000)

	results := []knowledge.Result{
		source("c1", "Home Research", "Users want a personalized home.", 0.95),
		source("c2", "Interviews", "Search is hard to find.", 0.88),
	}
	prompt := a.Assemble("q", guideline.ObjectiveExplore, results)

	require.Len(t, prompt.Sources, 2)
	assert.Equal(t, "c1", prompt.Sources[0].ID, "S1 must be the most relevant source")
	assert.Contains(t, prompt.User, "[S1] Home Research")
	assert.Contains(t, prompt.User, "[S2] Interviews")
	assert.Less(t,
		strings.Index(prompt.User, "[S1]"),
		strings.Index(prompt.User, "[S2]"))
}

func TestAssembleDropsLowestRelevanceWhenOverBudget(t *testing.T) {
	a := NewAssembler(guidelineSet(t), guideline.BuiltinObjectives(), 1200)

	big := strings.Repeat("x", 400)
	results := []knowledge.Result{
		source("best", "Best", big, 0.95),
		source("mid", "Mid", big, 0.85),
		source("worst", "Worst", big, 0.75),
	}
	prompt := a.Assemble("q", guideline.ObjectiveExplore, results)

	require.NotEmpty(t, prompt.Sources)
	assert.Equal(t, "best", prompt.Sources[0].ID, "the best source survives trimming")
	assert.Less(t, len(prompt.Sources), 3, "something must be dropped on a tight budget")
	assert.LessOrEqual(t, len(prompt.User), 1200+200,
		"prompt stays near the configured budget")
}

func TestAssembleGuidelinesNeverTrimmed(t *testing.T) {
	long := "# Long Guideline\n\n" + strings.Repeat("Guidance sentence. ", 100)
	a := NewAssembler(guidelineSet(t, long), guideline.BuiltinObjectives(), 500)

	prompt := a.Assemble("q", guideline.ObjectiveExplore, []knowledge.Result{
		source("c1", "T", strings.Repeat("y", 300), 0.9),
	})

	assert.Contains(t, prompt.User, strings.TrimSpace(long),
		"guidelines win over chunks even when the budget is blown")
	assert.Empty(t, prompt.Sources, "no chunk fits once guidelines consumed the budget")
}

func TestAssembleEmptyRetrievalAddsNote(t *testing.T) {
	a := NewAssembler(guidelineSet(t), guideline.BuiltinObjectives(), 24000)

	prompt := a.Assemble("q", guideline.ObjectiveExplore, nil)
	assert.Contains(t, prompt.User, "No research excerpts matched")
	assert.NotContains(t, prompt.User, "too\nlarge to include")
	assert.Empty(t, prompt.Sources)
}

func TestAssembleOverBudgetNoteWhenAllSourcesDropped(t *testing.T) {
	long := "# Long Guideline\n\n" + strings.Repeat("Guidance sentence. ", 100)
	a := NewAssembler(guidelineSet(t, long), guideline.BuiltinObjectives(), 500)

	prompt := a.Assemble("q", guideline.ObjectiveExplore, []knowledge.Result{
		source("c1", "T", strings.Repeat("y", 300), 0.9),
	})

	require.Empty(t, prompt.Sources)
	assert.Contains(t, prompt.User, "too\nlarge to include",
		"dropped-for-budget must not read as no-match")
	assert.NotContains(t, prompt.User, "No research excerpts matched")
}

func TestAssembleObjectiveInstructionIncluded(t *testing.T) {
	a := NewAssembler(guidelineSet(t), guideline.BuiltinObjectives(), 24000)

	explore := a.Assemble("q", guideline.ObjectiveExplore, nil)
	ideate := a.Assemble("q", guideline.ObjectiveIdeate, nil)

	assert.Contains(t, explore.User, "explore what prior research has found")
	assert.Contains(t, ideate.User, "new ideas grounded in prior research")
	assert.NotEqual(t, explore.User, ideate.User)
}
