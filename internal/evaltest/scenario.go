// Package evaltest loads the shared end-to-end scenario table (spec.md
// §8.2) from a txtar fixture, so both the tree-walking evaluator and
// the bytecode VM can be run against the exact same inputs and
// expected outputs without duplicating the scenario list per backend.
package evaltest

import (
	"fmt"
	"strings"

	"golang.org/x/tools/txtar"
)

// Scenario is one named (Source, Expected) pair: Source is evaluated
// top-level, and the last form's printed value must equal Expected.
type Scenario struct {
	Name     string
	Source   string
	Expected string
}

// Load parses a txtar archive at path into its named scenarios, pairing
// each scenario's `<name>/input.clj` file with its `<name>/expected.txt`.
func Load(path string) ([]Scenario, error) {
	arc, err := txtar.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading scenarios from %s: %w", path, err)
	}
	return fromArchive(arc)
}

func fromArchive(arc *txtar.Archive) ([]Scenario, error) {
	sources := map[string]string{}
	expected := map[string]string{}
	var order []string

	for _, f := range arc.Files {
		dir, base, ok := splitTxtarName(f.Name)
		if !ok {
			continue
		}
		switch base {
		case "input.clj":
			if _, seen := sources[dir]; !seen {
				order = append(order, dir)
			}
			sources[dir] = string(f.Data)
		case "expected.txt":
			expected[dir] = strings.TrimRight(string(f.Data), "\n")
		}
	}

	scenarios := make([]Scenario, 0, len(order))
	for _, name := range order {
		exp, ok := expected[name]
		if !ok {
			return nil, fmt.Errorf("scenario %q: missing expected.txt", name)
		}
		scenarios = append(scenarios, Scenario{
			Name:     name,
			Source:   strings.TrimRight(sources[name], "\n"),
			Expected: exp,
		})
	}
	return scenarios, nil
}

func splitTxtarName(name string) (dir, base string, ok bool) {
	i := strings.LastIndex(name, "/")
	if i < 0 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}
