package manifest

import (
	"fmt"
	"slices"

	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/trace"
)

// Problem is one incompatibility between a manifest and a trace.
type Problem struct {
	Step    int
	Message string
}

func (p Problem) String() string {
	if p.Step < 0 {
		return p.Message
	}
	return fmt.Sprintf("step %d: %s", p.Step, p.Message)
}

// CheckTrace reports every way tr disagrees with the manifest without
// running a driver: missing variables, participants that differ from the
// declared set and actions outside the vocabulary. An empty result means a
// driver built from m can replay tr.
func (m *Manifest) CheckTrace(tr *trace.Trace) ([]Problem, error) {
	resolver, err := m.Resolver()
	if err != nil {
		return nil, err
	}

	var problems []Problem
	for _, name := range []string{m.StateRoot, engine.VarNondetPicks} {
		if len(tr.Vars) > 0 && !slices.Contains(tr.Vars, name) {
			problems = append(problems, Problem{Step: -1, Message: fmt.Sprintf("trace does not declare variable %q", name)})
		}
	}

	declared := slices.Clone(m.Participants)
	slices.Sort(declared)

	for _, step := range tr.Steps {
		picks, err := resolver.Resolve(step)
		if err != nil {
			problems = append(problems, Problem{Step: step.Index, Message: err.Error()})
		} else if picks.HasParticipant() && !slices.Contains(declared, picks.Participant) {
			problems = append(problems, Problem{
				Step:    step.Index,
				Message: fmt.Sprintf("picked participant %q is not declared", picks.Participant),
			})
		}

		ids, err := engine.ParticipantIDs(step, m.StateRoot, m.SystemField)
		if err != nil {
			problems = append(problems, Problem{Step: step.Index, Message: err.Error()})
			continue
		}
		if !slices.Equal(ids, declared) {
			problems = append(problems, Problem{
				Step:    step.Index,
				Message: fmt.Sprintf("system participants %v differ from declared %v", ids, declared),
			})
		}
	}
	return problems, nil
}
