package engine

import (
	"fmt"
	"slices"
)

// ActionInit is the pseudo-transition of a trace's first step.
const ActionInit = "init"

// Targeting says which participants a transition may change.
type Targeting int

const (
	// TargetOne changes only the participant named by the participant pick.
	// The pick is required.
	TargetOne Targeting = iota

	// TargetAll changes every participant.
	TargetAll

	// TargetNone changes no participant state tracked by the pool.
	TargetNone
)

// String returns the manifest spelling of t.
func (t Targeting) String() string {
	switch t {
	case TargetOne:
		return "one"
	case TargetAll:
		return "all"
	case TargetNone:
		return "none"
	default:
		return fmt.Sprintf("Targeting(%d)", int(t))
	}
}

// ParseTargeting parses "one", "all" or "none".
func ParseTargeting(s string) (Targeting, error) {
	switch s {
	case "one":
		return TargetOne, nil
	case "all":
		return TargetAll, nil
	case "none":
		return TargetNone, nil
	default:
		return 0, fmt.Errorf("invalid targeting %q (want one, all or none)", s)
	}
}

// Transition declares one variant of the model's transition label.
type Transition struct {
	Name   string
	Target Targeting

	// Params names the fields of the label payload, for documentation and
	// manifest validation. Empty means the payload is unit or a scalar.
	Params []string
}

// Vocabulary is the closed set of transitions a model can produce, plus the
// participants it declares. It is immutable once built.
type Vocabulary struct {
	participants []string
	transitions  map[string]Transition
	names        []string
}

// NewVocabulary builds a vocabulary. ActionInit is always included and
// targets every declared participant.
//
// Returns an error for empty or duplicate names, a transition named
// ActionInit, or duplicate participants.
func NewVocabulary(participants []string, transitions ...Transition) (*Vocabulary, error) {
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p == "" {
			return nil, fmt.Errorf("vocabulary: empty participant id")
		}
		if seen[p] {
			return nil, fmt.Errorf("vocabulary: duplicate participant %q", p)
		}
		seen[p] = true
	}

	v := &Vocabulary{
		participants: slices.Clone(participants),
		transitions:  make(map[string]Transition, len(transitions)+1),
	}
	v.transitions[ActionInit] = Transition{Name: ActionInit, Target: TargetAll}

	for _, t := range transitions {
		switch {
		case t.Name == "":
			return nil, fmt.Errorf("vocabulary: transition with empty name")
		case t.Name == ActionInit:
			return nil, fmt.Errorf("vocabulary: %q is implicit and cannot be declared", ActionInit)
		case v.transitions[t.Name].Name != "":
			return nil, fmt.Errorf("vocabulary: duplicate transition %q", t.Name)
		}
		t.Params = slices.Clone(t.Params)
		v.transitions[t.Name] = t
	}

	for name := range v.transitions {
		v.names = append(v.names, name)
	}
	slices.Sort(v.names)
	return v, nil
}

// MustVocabulary is like NewVocabulary but panics on error.
// Use only in tests or for vocabularies declared in code.
func MustVocabulary(participants []string, transitions ...Transition) *Vocabulary {
	v, err := NewVocabulary(participants, transitions...)
	if err != nil {
		panic(err)
	}
	return v
}

// Lookup returns the declared transition named name.
func (v *Vocabulary) Lookup(name string) (Transition, bool) {
	t, ok := v.transitions[name]
	return t, ok
}

// Contains reports whether name is declared (ActionInit included).
func (v *Vocabulary) Contains(name string) bool {
	_, ok := v.transitions[name]
	return ok
}

// Names returns every transition name, ActionInit included, sorted.
func (v *Vocabulary) Names() []string {
	return slices.Clone(v.names)
}

// Participants returns the declared participant ids in declaration order.
func (v *Vocabulary) Participants() []string {
	return slices.Clone(v.participants)
}
