// Package manifest loads CUE model manifests.
//
// A manifest declares what the engine needs to know about a model that the
// traces do not carry: the participants, where the system state lives, how
// nondeterministic picks are named and the closed set of transitions with
// their targeting rules.
//
//	module:       "ballot"
//	model:        "ballot.qnt"
//	state_root:   "ballot::state"
//	participants: ["p1", "p2", "p3"]
//	transitions: {
//		Propose:     {target: "one", params: ["value"]}
//		ReceiveVote: {target: "one", params: ["from"]}
//		Tick:        {target: "none"}
//	}
//
// Manifests are unified with an embedded schema, so unknown fields, missing
// required fields and invalid targets are rejected with CUE positions.
package manifest

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/conform/internal/engine"
)

//go:embed schema.cue
var schemaSource string

// Picks names the entries of mbt::nondetPicks the resolver reads.
type Picks struct {
	Participant string
	Transition  string
	Label       string
}

// Manifest is a loaded model manifest.
type Manifest struct {
	// Path is the file the manifest was loaded from.
	Path string

	Module string

	// Model is the Quint model file, relative to the manifest.
	Model string

	StateRoot    string
	SystemField  string
	Participants []string
	Picks        Picks

	// Transitions is sorted by name and never contains engine.ActionInit.
	Transitions []engine.Transition
}

// Error is a manifest error with its CUE position when known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := Parse(data, path)
	if err != nil {
		return nil, err
	}
	m.Path = path
	return m, nil
}

// Parse compiles manifest source. filename is used in error positions.
func Parse(data []byte, filename string) (*Manifest, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Manifest"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("manifest schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Manifest{}
	var err error
	if m.Module, err = stringField(v, "module"); err != nil {
		return nil, err
	}
	if model := v.LookupPath(cue.ParsePath("model")); model.Exists() {
		if m.Model, err = stringField(v, "model"); err != nil {
			return nil, err
		}
	}
	if m.StateRoot, err = stringField(v, "state_root"); err != nil {
		return nil, err
	}
	if m.SystemField, err = stringField(v, "system_field"); err != nil {
		return nil, err
	}
	if m.Participants, err = stringList(v, "participants"); err != nil {
		return nil, err
	}
	if m.Picks.Participant, err = stringField(v, "picks.participant"); err != nil {
		return nil, err
	}
	if m.Picks.Transition, err = stringField(v, "picks.transition"); err != nil {
		return nil, err
	}
	if m.Picks.Label, err = stringField(v, "picks.label"); err != nil {
		return nil, err
	}
	if m.Transitions, err = parseTransitions(v); err != nil {
		return nil, err
	}

	// Catch duplicate participants and reserved names here, with a
	// position, rather than at run time.
	if _, err := m.Vocabulary(); err != nil {
		return nil, &Error{Field: "manifest", Message: err.Error(), Pos: v.Pos()}
	}
	return m, nil
}

func parseTransitions(v cue.Value) ([]engine.Transition, error) {
	tv := v.LookupPath(cue.ParsePath("transitions"))
	iter, err := tv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []engine.Transition
	for iter.Next() {
		name := iter.Label()
		if name == engine.ActionInit {
			return nil, &Error{
				Field:   "transitions." + name,
				Message: "init is implicit and cannot be declared",
				Pos:     iter.Value().Pos(),
			}
		}

		target, err := stringField(iter.Value(), "target")
		if err != nil {
			return nil, err
		}
		tgt, err := engine.ParseTargeting(target)
		if err != nil {
			return nil, &Error{Field: "transitions." + name + ".target", Message: err.Error(), Pos: iter.Value().Pos()}
		}
		params, err := stringList(iter.Value(), "params")
		if err != nil {
			return nil, err
		}
		out = append(out, engine.Transition{Name: name, Target: tgt, Params: params})
	}
	slices.SortFunc(out, func(a, b engine.Transition) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

func stringField(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", &Error{Field: path, Message: "field is required", Pos: v.Pos()}
	}
	f, _ = f.Default()
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringList(v cue.Value, path string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return nil, &Error{Field: path, Message: "field is required", Pos: v.Pos()}
	}
	f, _ = f.Default()
	iter, err := f.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}

// Vocabulary returns the engine vocabulary the manifest declares.
func (m *Manifest) Vocabulary() (*engine.Vocabulary, error) {
	return engine.NewVocabulary(m.Participants, m.Transitions...)
}

// Resolver returns a resolver over the manifest's vocabulary and pick names.
func (m *Manifest) Resolver() (*engine.Resolver, error) {
	vocab, err := m.Vocabulary()
	if err != nil {
		return nil, err
	}
	return &engine.Resolver{
		Vocabulary:      vocab,
		ParticipantPick: m.Picks.Participant,
		TransitionPick:  m.Picks.Transition,
		LabelField:      m.Picks.Label,
	}, nil
}
