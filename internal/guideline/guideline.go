// Package guideline loads the product-discovery guidelines and research
// objectives that frame every generated answer.
//
// Guidelines are Markdown files in a directory, loaded once at startup
// and included verbatim in every prompt. Objectives describe what the
// user is trying to accomplish (explore prior findings, request ideation,
// validate a hypothesis) and select the instruction block for the answer.
package guideline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Guideline is one loaded guideline document.
type Guideline struct {
	// Name is the source filename without extension.
	Name string
	// Title is the first level-1 heading, or Name when absent.
	Title string
	// Content is the full file text, never truncated or summarized.
	Content string
}

// Set is an immutable collection of guidelines, ordered by filename.
type Set struct {
	guidelines []Guideline
}

// LoadSet reads every .md file directly under dir, sorted by filename so
// prompt order is stable across restarts. An empty or missing directory
// yields an empty set, not an error: running without guidelines is
// legitimate during early setup.
func LoadSet(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Set{}, nil
		}
		return nil, fmt.Errorf("reading guidelines directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	set := &Set{guidelines: make([]Guideline, 0, len(names))}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading guideline %s: %w", name, err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		set.guidelines = append(set.guidelines, Guideline{
			Name:    strings.TrimSuffix(name, filepath.Ext(name)),
			Title:   titleOf(content, name),
			Content: content,
		})
	}

	return set, nil
}

// All returns the guidelines in filename order. The returned slice must
// not be modified.
func (s *Set) All() []Guideline {
	return s.guidelines
}

// Len returns the number of loaded guidelines.
func (s *Set) Len() int {
	return len(s.guidelines)
}

// TotalChars returns the combined content length. The prompt assembler
// uses it to size the remaining budget for retrieved chunks.
func (s *Set) TotalChars() int {
	n := 0
	for _, g := range s.guidelines {
		n += len(g.Content)
	}
	return n
}

func titleOf(content, filename string) string {
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			if t := strings.TrimSpace(after); t != "" {
				return t
			}
		}
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
