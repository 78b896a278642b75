package guideline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Objective identifies what the user wants from an answer.
type Objective string

const (
	// ObjectiveExplore asks what prior research already found.
	ObjectiveExplore Objective = "explore-prior-findings"
	// ObjectiveIdeate asks for new ideas grounded in the findings.
	ObjectiveIdeate Objective = "request-ideation"
	// ObjectiveValidate asks whether the findings support a hypothesis.
	ObjectiveValidate Objective = "validate-hypothesis"
)

// DefaultObjective applies when classification is inconclusive.
const DefaultObjective = ObjectiveExplore

// ObjectiveSpec is a loaded objective definition: the instruction block
// injected into the prompt plus example questions for the classifier.
type ObjectiveSpec struct {
	Objective   Objective
	Instruction string
	Examples    []string
}

// builtinObjectives are used when no objectives directory is configured.
var builtinObjectives = []ObjectiveSpec{
	{
		Objective: ObjectiveExplore,
		Instruction: "The user wants to explore what prior research has found. " +
			"Summarize the relevant findings faithfully, citing sources, and " +
			"point out gaps where the research is silent.",
		Examples: []string{
			"What did we learn about onboarding drop-off?",
			"Quais são os principais desafios na personalização da Home?",
			"What pain points came up in the last round of interviews?",
		},
	},
	{
		Objective: ObjectiveIdeate,
		Instruction: "The user wants new ideas grounded in prior research. " +
			"Propose concrete directions, each anchored to a cited finding, " +
			"and flag which ideas lack supporting evidence.",
		Examples: []string{
			"What could we build to improve checkout conversion?",
			"Que ideias temos para melhorar a busca?",
			"How might we reduce friction in the signup flow?",
		},
	},
	{
		Objective: ObjectiveValidate,
		Instruction: "The user wants to validate a hypothesis against prior " +
			"research. State whether the findings support, contradict, or do " +
			"not address it, citing the evidence either way.",
		Examples: []string{
			"Do users actually abandon carts because of shipping costs?",
			"Os usuários realmente preferem o app ao site?",
			"Is it true that most complaints are about load time?",
		},
	},
}

// Objectives is the loaded catalogue of objective specs.
type Objectives struct {
	specs []ObjectiveSpec
}

// LoadObjectives reads objective definitions from dir, one Markdown file
// per objective. The filename stem is the objective name; the body before
// the first "## Examples" heading is the instruction, the list items
// after it are the classifier examples. A missing directory falls back to
// the built-in catalogue.
func LoadObjectives(dir string) (*Objectives, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Objectives{specs: builtinObjectives}, nil
		}
		return nil, fmt.Errorf("reading objectives directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return &Objectives{specs: builtinObjectives}, nil
	}
	sort.Strings(names)

	o := &Objectives{}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading objective %s: %w", name, err)
		}
		spec := parseObjective(strings.TrimSuffix(name, filepath.Ext(name)), string(data))
		if spec.Instruction == "" {
			continue
		}
		o.specs = append(o.specs, spec)
	}
	if len(o.specs) == 0 {
		return &Objectives{specs: builtinObjectives}, nil
	}
	return o, nil
}

// BuiltinObjectives returns the built-in catalogue.
func BuiltinObjectives() *Objectives {
	return &Objectives{specs: builtinObjectives}
}

// Specs returns all objective specs.
func (o *Objectives) Specs() []ObjectiveSpec {
	return o.specs
}

// Lookup returns the spec for an objective, falling back to the default.
func (o *Objectives) Lookup(obj Objective) ObjectiveSpec {
	for _, s := range o.specs {
		if s.Objective == obj {
			return s
		}
	}
	for _, s := range o.specs {
		if s.Objective == DefaultObjective {
			return s
		}
	}
	return o.specs[0]
}

// Valid reports whether obj names a loaded objective.
func (o *Objectives) Valid(obj Objective) bool {
	for _, s := range o.specs {
		if s.Objective == obj {
			return true
		}
	}
	return false
}

func parseObjective(name, body string) ObjectiveSpec {
	spec := ObjectiveSpec{Objective: Objective(name)}

	var instruction []string
	inExamples := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") &&
			strings.EqualFold(strings.TrimPrefix(trimmed, "## "), "examples") {
			inExamples = true
			continue
		}
		if inExamples {
			if after, ok := strings.CutPrefix(trimmed, "- "); ok {
				if q := strings.TrimSpace(after); q != "" {
					spec.Examples = append(spec.Examples, q)
				}
			}
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			continue
		}
		instruction = append(instruction, line)
	}
	spec.Instruction = strings.TrimSpace(strings.Join(instruction, "\n"))
	return spec
}
