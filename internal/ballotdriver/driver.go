// Package ballotdriver replays ballot model traces against ballot.Node.
package ballotdriver

import (
	_ "embed"
	"fmt"

	"github.com/roach88/conform/internal/ballot"
	"github.com/roach88/conform/internal/engine"
	"github.com/roach88/conform/internal/itf"
	"github.com/roach88/conform/internal/manifest"
)

//go:embed ballot.cue
var manifestSource []byte

// BuggyQuorum is the quorum of the deliberately faulty variant.
const BuggyQuorum = ballot.DefaultQuorum - 1

// NodeState is the model's per-process state.
type NodeState struct {
	Round    int64              `itf:"round"`
	Stage    string             `itf:"stage"`
	Votes    []string           `itf:"votes"`
	Proposal itf.Option[string] `itf:"proposal"`
	Decision itf.Option[string] `itf:"decision"`
}

// Project translates a node into the model's representation.
func Project(n *ballot.Node) NodeState {
	s := NodeState{
		Round:    n.Round(),
		Stage:    string(n.Stage()),
		Votes:    n.Votes(),
		Proposal: itf.NoneOf[string](),
		Decision: itf.NoneOf[string](),
	}
	if p, ok := n.Proposal(); ok {
		s.Proposal = itf.SomeOf(p)
	}
	if d, ok := n.Decision(); ok {
		s.Decision = itf.SomeOf(d)
	}
	return s
}

// Handlers returns the dispatch table for the ballot vocabulary. Nodes are
// created with opts.
func Handlers(opts ...ballot.Option) map[string]engine.Handler[*ballot.Node] {
	return map[string]engine.Handler[*ballot.Node]{
		engine.ActionInit: engine.InitEach(func(id string, _ engine.Call) (*ballot.Node, error) {
			return ballot.NewNode(id, opts...), nil
		}),
		"Propose": engine.EachTarget(func(_ string, n *ballot.Node, call engine.Call) error {
			value, err := engine.Param[string](call.Picks)
			if err != nil {
				return err
			}
			return n.Propose(value)
		}),
		"ReceiveVote": engine.EachTarget(func(_ string, n *ballot.Node, call engine.Call) error {
			from, err := engine.Param[string](call.Picks)
			if err != nil {
				return err
			}
			return n.ReceiveVote(from)
		}),
		"Timeout":       engine.EachTarget(timeout),
		"GlobalTimeout": engine.EachTarget(timeout),
		"Tick":          engine.NoOp[*ballot.Node],
	}
}

func timeout(_ string, n *ballot.Node, _ engine.Call) error {
	n.Timeout()
	return nil
}

// Manifest returns the built-in ballot manifest.
func Manifest() *manifest.Manifest {
	m, err := manifest.Parse(manifestSource, "ballot.cue")
	if err != nil {
		panic(fmt.Sprintf("ballotdriver: embedded manifest: %v", err))
	}
	return m
}

// New returns a factory of correct ballot drivers. The dispatch table is
// built and checked once; every driver gets its own pool.
func New(m *manifest.Manifest) (engine.Factory, error) {
	return newFactory(m)
}

// NewBuggy is New with nodes that decide one vote early.
func NewBuggy(m *manifest.Manifest) (engine.Factory, error) {
	return newFactory(m, ballot.WithQuorum(BuggyQuorum))
}

func newFactory(m *manifest.Manifest, opts ...ballot.Option) (engine.Factory, error) {
	if m == nil {
		m = Manifest()
	}
	resolver, err := m.Resolver()
	if err != nil {
		return nil, err
	}
	sw, err := engine.NewSwitch(resolver.Vocabulary, Handlers(opts...))
	if err != nil {
		return nil, fmt.Errorf("ballot driver: %w", err)
	}
	cmp := engine.Comparator[NodeState, *ballot.Node]{
		StateRoot:   m.StateRoot,
		SystemField: m.SystemField,
		Project:     Project,
	}
	return func() (engine.Driver, error) {
		return engine.NewMachine(resolver, sw, cmp), nil
	}, nil
}
