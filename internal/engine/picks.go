package engine

import (
	"slices"

	"github.com/roach88/conform/internal/itf"
	"github.com/roach88/conform/internal/trace"
)

// Variables written by Quint's model-based testing mode.
const (
	VarNondetPicks = "mbt::nondetPicks"
	VarActionTaken = "mbt::actionTaken"
)

// Default pick names.
const (
	DefaultParticipantPick = "process"
	DefaultTransitionPick  = "transition"
	DefaultLabelField      = "label"
)

// TransitionLabel is the resolved variant of the model's transition label.
type TransitionLabel struct {
	Name string

	// Params is the variant payload; itf.Unit when the variant carries none.
	Params itf.Value
}

// NondetPicks holds the nondeterministic choices of one step.
type NondetPicks struct {
	// Action is the resolved action: ActionInit or a transition name.
	Action string

	// Participant is the participant pick, empty when the model left it
	// unset for this step.
	Participant string

	Label TransitionLabel

	// Values holds every pick that was set, Options unwrapped.
	Values map[string]itf.Value

	step            int
	participantPick string
	transitionPick  string
	labelField      string
}

// HasParticipant reports whether the step named a participant.
func (p NondetPicks) HasParticipant() bool {
	return p.Participant != ""
}

// Names returns the names of the picks that were set, sorted.
func (p NondetPicks) Names() []string {
	names := make([]string, 0, len(p.Values))
	for k := range p.Values {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Pick decodes the named pick into T.
// An unset pick is a *trace.MissingFieldError.
func Pick[T any](p NondetPicks, name string) (T, error) {
	var zero T
	v, ok := p.Values[name]
	if !ok {
		return zero, &trace.MissingFieldError{Step: p.step, Path: []string{VarNondetPicks, name}, Resolved: 1}
	}
	var out T
	if err := trace.DecodeAt(p.step, []string{VarNondetPicks, name}, v, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// Param decodes the transition label's payload into T.
func Param[T any](p NondetPicks) (T, error) {
	var zero T
	path := []string{VarNondetPicks, p.transitionPick, p.labelField, "value"}
	if p.Label.Params == nil {
		return zero, &trace.MissingFieldError{Step: p.step, Path: path, Resolved: 1}
	}
	var out T
	if err := trace.DecodeAt(p.step, path, p.Label.Params, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// Resolver extracts NondetPicks from steps.
//
// The transition pick is expected to be an Option of a record whose
// LabelField holds the label variant:
//
//	"mbt::nondetPicks": {
//	  "process":    {"tag": "Some", "value": "p3"},
//	  "transition": {"tag": "Some", "value": {"label": {"tag": "Propose", "value": "v1"}}}
//	}
//
// An unset transition pick resolves to ActionInit.
type Resolver struct {
	// Vocabulary is the closed transition set. A nil Vocabulary accepts any
	// label; dispatch still rejects undeclared ones.
	Vocabulary *Vocabulary

	ParticipantPick string
	TransitionPick  string
	LabelField      string
}

// NewResolver returns a Resolver with the default pick names.
func NewResolver(vocab *Vocabulary) *Resolver {
	return &Resolver{
		Vocabulary:      vocab,
		ParticipantPick: DefaultParticipantPick,
		TransitionPick:  DefaultTransitionPick,
		LabelField:      DefaultLabelField,
	}
}

// Resolve reads the step's nondeterministic picks.
func (r *Resolver) Resolve(step trace.Step) (NondetPicks, error) {
	participantPick := orDefault(r.ParticipantPick, DefaultParticipantPick)
	transitionPick := orDefault(r.TransitionPick, DefaultTransitionPick)
	labelField := orDefault(r.LabelField, DefaultLabelField)

	picks := NondetPicks{
		Values:          make(map[string]itf.Value),
		step:            step.Index,
		participantPick: participantPick,
		transitionPick:  transitionPick,
		labelField:      labelField,
	}

	raw, ok := step.Var(VarNondetPicks)
	if !ok {
		return picks, &trace.MissingFieldError{Step: step.Index, Path: []string{VarNondetPicks}}
	}
	rec, ok := raw.(itf.Record)
	if !ok {
		return picks, &trace.TypeMismatchError{
			Step: step.Index,
			Path: []string{VarNondetPicks},
			Want: "record",
			Got:  itf.Kind(raw),
		}
	}
	for name, v := range rec {
		if inner, set := itf.Unwrap(v); set {
			picks.Values[name] = inner
		}
	}

	if v, set := picks.Values[participantPick]; set {
		id, isStr := v.(itf.Str)
		if !isStr {
			return picks, &trace.TypeMismatchError{
				Step: step.Index,
				Path: []string{VarNondetPicks, participantPick},
				Want: "string",
				Got:  itf.Kind(v),
			}
		}
		picks.Participant = string(id)
	}

	tv, set := picks.Values[transitionPick]
	if !set {
		picks.Action = ActionInit
		picks.Label = TransitionLabel{Name: ActionInit, Params: itf.Unit}
		return picks, nil
	}

	label, err := r.label(step, tv, transitionPick, labelField)
	if err != nil {
		return picks, err
	}
	picks.Action = label.Name
	picks.Label = label

	if r.Vocabulary != nil && !r.Vocabulary.Contains(label.Name) {
		return picks, &UnhandledTransitionError{Step: step.Index, Action: label.Name}
	}
	return picks, nil
}

func (r *Resolver) label(step trace.Step, v itf.Value, transitionPick, labelField string) (TransitionLabel, error) {
	path := []string{VarNondetPicks, transitionPick, labelField}

	rec, ok := v.(itf.Record)
	if !ok {
		return TransitionLabel{}, &trace.TypeMismatchError{
			Step: step.Index, Path: path[:2], Want: "record", Got: itf.Kind(v),
		}
	}
	lv, ok := rec[labelField]
	if !ok {
		return TransitionLabel{}, &trace.MissingFieldError{Step: step.Index, Path: path, Resolved: 2}
	}
	tag, payload, ok := itf.Tag(lv)
	if !ok {
		return TransitionLabel{}, &trace.TypeMismatchError{
			Step: step.Index, Path: path, Want: "variant", Got: itf.Kind(lv),
		}
	}
	return TransitionLabel{Name: tag, Params: payload}, nil
}

// ActionTaken returns the resolved action of step, or false when the picks
// cannot be resolved.
func (r *Resolver) ActionTaken(step trace.Step) (string, bool) {
	picks, err := r.Resolve(step)
	if err != nil {
		return "", false
	}
	return picks.Action, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
