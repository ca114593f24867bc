// Package ballot is a small single-decree voting protocol used as the
// reference system under test. A node proposes a value, collects votes and
// decides once a quorum agrees. A timeout abandons the round.
package ballot

import (
	"errors"
	"fmt"
	"slices"
)

// Stage is the phase of a node within its round.
type Stage string

const (
	StageIdle    Stage = "idle"
	StageVoted   Stage = "voted"
	StageDecided Stage = "decided"
)

// DefaultQuorum is the number of votes needed to decide with six nodes.
const DefaultQuorum = 5

var (
	// ErrNotIdle is returned when proposing outside the idle stage.
	ErrNotIdle = errors.New("node is not idle")

	// ErrNotVoted is returned when a vote arrives before the node proposed.
	ErrNotVoted = errors.New("node has not voted")
)

// Node is one ballot participant. It is not safe for concurrent use.
type Node struct {
	id     string
	quorum int

	round    int64
	stage    Stage
	votes    map[string]struct{}
	proposal *string
	decision *string
}

// Option configures a Node.
type Option func(*Node)

// WithQuorum overrides DefaultQuorum.
func WithQuorum(q int) Option {
	return func(n *Node) {
		n.quorum = q
	}
}

// NewNode creates an idle node in round 0.
func NewNode(id string, opts ...Option) *Node {
	n := &Node{
		id:     id,
		quorum: DefaultQuorum,
		stage:  StageIdle,
		votes:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Node) ID() string { return n.id }
func (n *Node) Round() int64 { return n.round }
func (n *Node) Stage() Stage { return n.stage }
func (n *Node) Quorum() int { return n.quorum }

// Votes returns the ids that voted for the current proposal, sorted.
func (n *Node) Votes() []string {
	out := make([]string, 0, len(n.votes))
	for id := range n.votes {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Proposal returns the value proposed this round.
func (n *Node) Proposal() (string, bool) {
	if n.proposal == nil {
		return "", false
	}
	return *n.proposal, true
}

// Decision returns the decided value. A decision survives timeouts.
func (n *Node) Decision() (string, bool) {
	if n.decision == nil {
		return "", false
	}
	return *n.decision, true
}

// Propose proposes value and votes for it.
func (n *Node) Propose(value string) error {
	if n.stage != StageIdle {
		return fmt.Errorf("propose %q in stage %s: %w", value, n.stage, ErrNotIdle)
	}
	n.proposal = &value
	n.stage = StageVoted
	n.vote(n.id)
	return nil
}

// ReceiveVote records a vote from a peer. Votes after the decision are
// ignored.
func (n *Node) ReceiveVote(from string) error {
	switch n.stage {
	case StageIdle:
		return fmt.Errorf("vote from %s: %w", from, ErrNotVoted)
	case StageDecided:
		return nil
	}
	n.vote(from)
	return nil
}

// Timeout abandons an undecided round and moves to the next one.
func (n *Node) Timeout() {
	if n.stage == StageDecided {
		return
	}
	n.round++
	n.stage = StageIdle
	n.proposal = nil
	clear(n.votes)
}

func (n *Node) vote(from string) {
	n.votes[from] = struct{}{}
	if len(n.votes) >= n.quorum {
		n.stage = StageDecided
		v := *n.proposal
		n.decision = &v
	}
}
