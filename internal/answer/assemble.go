package answer

import (
	"fmt"
	"strings"

	"github.com/pdiscovery/pdiscovery/internal/guideline"
	"github.com/pdiscovery/pdiscovery/internal/knowledge"
)

const systemPrompt = `You are a product-discovery research assistant.
Answer strictly from the provided research excerpts and guidelines.
When a statement comes from an excerpt, cite it with its source marker,
for example [S1] or [S2]. If the excerpts do not cover the question, say
so explicitly instead of inventing an answer. Respond in the language of
the question.`

const emptyContextNote = `No research excerpts matched this question. Say
clearly that the indexed research does not cover it, and suggest what
kind of research would.`

const overBudgetNote = `Relevant research excerpts exist but were too
large to include here. Say that matching research exists and suggest
narrowing the question to get a grounded answer.`

// Assembler builds model prompts within a character budget.
//
// Budget policy: the objective instruction, the guidelines and the
// question are always included in full; guidelines are never truncated or
// summarized. Only retrieved chunks yield, lowest relevance first.
type Assembler struct {
	guidelines *guideline.Set
	objectives *guideline.Objectives
	maxChars   int
}

// NewAssembler creates a prompt assembler. maxChars bounds the user
// prompt length.
func NewAssembler(guidelines *guideline.Set, objectives *guideline.Objectives, maxChars int) *Assembler {
	return &Assembler{
		guidelines: guidelines,
		objectives: objectives,
		maxChars:   maxChars,
	}
}

// Assemble builds the prompt for a question. results must already be
// ranked best first; markers are assigned in that order so [S1] is always
// the most relevant source.
func (a *Assembler) Assemble(question string, objective guideline.Objective, results []knowledge.Result) Prompt {
	spec := a.objectives.Lookup(objective)

	var fixed strings.Builder
	fixed.WriteString("## Objective\n\n")
	fixed.WriteString(spec.Instruction)
	fixed.WriteString("\n\n")

	if a.guidelines.Len() > 0 {
		fixed.WriteString("## Guidelines\n\n")
		for _, g := range a.guidelines.All() {
			fixed.WriteString(g.Content)
			fixed.WriteString("\n\n")
		}
	}

	question = strings.TrimSpace(question)
	questionBlock := "## Question\n\n" + question + "\n"

	// Whatever the fixed sections leave over goes to excerpts.
	budget := a.maxChars - fixed.Len() - len(questionBlock)

	included := fitSources(results, budget)

	var user strings.Builder
	user.WriteString(fixed.String())
	if len(included) > 0 {
		user.WriteString("## Research excerpts\n\n")
		for i, r := range included {
			fmt.Fprintf(&user, "[S%d] %s (%s)\n%s\n\n", i+1, r.Title, r.SourceName, r.Content)
		}
	} else {
		user.WriteString("## Research excerpts\n\n")
		if len(results) > 0 {
			user.WriteString(overBudgetNote)
		} else {
			user.WriteString(emptyContextNote)
		}
		user.WriteString("\n\n")
	}
	user.WriteString(questionBlock)

	return Prompt{
		System:  systemPrompt,
		User:    user.String(),
		Sources: included,
	}
}

// fitSources keeps the best-ranked prefix of results that fits the
// budget. Dropping from the tail keeps marker numbering aligned with
// relevance.
func fitSources(results []knowledge.Result, budget int) []knowledge.Result {
	if budget <= 0 {
		return nil
	}
	// Per-source framing: "[Sn] title (source)\n...\n\n".
	const frame = 48

	used := 0
	n := 0
	for _, r := range results {
		cost := len(r.Content) + len(r.Title) + len(r.SourceName) + frame
		if used+cost > budget {
			break
		}
		used += cost
		n++
	}
	return results[:n]
}
