package plan

import (
	"strings"

	"github.com/hupe1980/cognimesh/core"
)

// Validate checks that p has steps with unique ids, known dependencies and
// no dependency cycle. Failures carry core.CodeInvalidPlan.
func Validate(p *Plan) error {
	if p == nil {
		return core.NewError(core.CodeInvalidInput, "plan is nil")
	}

	if _, ok := ParseExecutionModel(string(p.Model)); !ok {
		return core.Errorf(core.CodeInvalidPlan, "unknown execution model %q", p.Model)
	}

	return validateSteps(p.Steps())
}

func validateSteps(steps []Step) error {
	if len(steps) == 0 {
		return core.NewError(core.CodeInvalidPlan, "plan has no steps")
	}

	ids := make(map[string]struct{}, len(steps))

	for _, s := range steps {
		if strings.TrimSpace(s.ID) == "" {
			return core.NewError(core.CodeInvalidPlan, "step id must not be empty")
		}

		if _, dup := ids[s.ID]; dup {
			return core.Errorf(core.CodeInvalidPlan, "duplicate step id %q", s.ID)
		}

		ids[s.ID] = struct{}{}
	}

	for _, s := range steps {
		for _, d := range s.DependsOn {
			if d == s.ID {
				return core.Errorf(core.CodeInvalidPlan, "step %q depends on itself", s.ID)
			}

			if _, ok := ids[d]; !ok {
				return core.Errorf(core.CodeInvalidPlan, "step %q depends on unknown step %q", s.ID, d)
			}
		}
	}

	if _, err := TopologicalOrder(steps); err != nil {
		return err
	}

	return nil
}

// TopologicalOrder orders steps so that every step follows its
// dependencies, keeping list order among independent steps (Kahn's
// algorithm). A cycle is a core.CodeInvalidPlan error.
func TopologicalOrder(steps []Step) ([]Step, error) {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	byID := make(map[string]Step, len(steps))

	for _, s := range steps {
		byID[s.ID] = s

		for _, d := range s.DependsOn {
			indegree[s.ID]++
			dependents[d] = append(dependents[d], s.ID)
		}
	}

	out := make([]Step, 0, len(steps))
	done := make(map[string]bool, len(steps))

	for len(out) < len(steps) {
		progressed := false

		for _, s := range steps {
			if done[s.ID] || indegree[s.ID] > 0 {
				continue
			}

			done[s.ID] = true
			out = append(out, byID[s.ID])
			progressed = true

			for _, dep := range dependents[s.ID] {
				indegree[dep]--
			}

			break
		}

		if !progressed {
			var cyclic []string

			for _, s := range steps {
				if !done[s.ID] {
					cyclic = append(cyclic, s.ID)
				}
			}

			return nil, core.Errorf(core.CodeInvalidPlan, "dependency cycle among steps %s", strings.Join(cyclic, ", "))
		}
	}

	return out, nil
}

// hasDependencies reports whether any step declares a dependency.
func hasDependencies(steps []Step) bool {
	for _, s := range steps {
		if len(s.DependsOn) > 0 {
			return true
		}
	}

	return false
}

// normalizeModel defaults an empty model to sequential and promotes a
// parallel plan with dependencies to a dag.
func normalizeModel(m ExecutionModel, steps []Step) ExecutionModel {
	switch {
	case m == "":
		return Sequential
	case m == Parallel && hasDependencies(steps):
		return DAG
	default:
		return m
	}
}
