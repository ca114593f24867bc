package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/roach88/conform/internal/itf"
)

// Meta is the document-level #meta object of an ITF trace.
type Meta struct {
	Format            string `json:"format,omitempty"`
	FormatDescription string `json:"format-description,omitempty"`
	Source            string `json:"source,omitempty"`
	Description       string `json:"description,omitempty"`
}

// Trace is a decoded ITF document.
type Trace struct {
	Meta Meta

	// Vars lists the state variables the producer declared.
	Vars []string

	// Params lists the trace parameters, if any.
	Params []string

	Steps []Step

	// Fingerprint identifies the trace by content (see itf.Fingerprint).
	Fingerprint string

	// Name is where the trace came from, usually a file path.
	Name string
}

type document struct {
	Meta   Meta              `json:"#meta"`
	Vars   []string          `json:"vars"`
	Params []string          `json:"params"`
	States []json.RawMessage `json:"states"`
}

type stateMeta struct {
	Meta struct {
		Index *int `json:"index"`
	} `json:"#meta"`
}

// Decode reads one ITF document from r.
func Decode(r io.Reader) (*Trace, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return Parse(data)
}

// Parse decodes an ITF document.
// A trace must have at least one state, and #meta.index, when present, must
// match the state's position.
func Parse(data []byte) (*Trace, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	if len(doc.States) == 0 {
		return nil, fmt.Errorf("parse trace: no states")
	}

	tr := &Trace{
		Meta:   doc.Meta,
		Vars:   doc.Vars,
		Params: doc.Params,
		Steps:  make([]Step, len(doc.States)),
	}
	states := make([]itf.Record, len(doc.States))
	for i, raw := range doc.States {
		var sm stateMeta
		if err := json.Unmarshal(raw, &sm); err != nil {
			return nil, fmt.Errorf("parse trace: state %d: %w", i, err)
		}
		if sm.Meta.Index != nil && *sm.Meta.Index != i {
			return nil, fmt.Errorf("parse trace: state %d has #meta.index %d", i, *sm.Meta.Index)
		}

		v, err := itf.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("parse trace: state %d: %w", i, err)
		}
		rec, ok := v.(itf.Record)
		if !ok {
			return nil, fmt.Errorf("parse trace: state %d: expected record, got %s", i, itf.Kind(v))
		}
		states[i] = rec
		tr.Steps[i] = Step{Index: i, State: rec}
	}

	fp, err := itf.Fingerprint(states)
	if err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}
	tr.Fingerprint = fp
	return tr, nil
}

// ReadFile reads an ITF trace from disk.
func ReadFile(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file %s: %w", path, err)
	}
	tr, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	tr.Name = path
	return tr, nil
}

// Iter returns an iterator over the trace's steps.
func (t *Trace) Iter() *SliceIterator {
	return NewSliceIterator(t.Steps)
}

// Len returns the number of steps.
func (t *Trace) Len() int {
	return len(t.Steps)
}

// Encode writes the trace as an ITF document with canonical values.
func (t *Trace) Encode(w io.Writer) error {
	var buf bytes.Buffer
	head, err := json.Marshal(struct {
		Meta   Meta     `json:"#meta"`
		Vars   []string `json:"vars"`
		Params []string `json:"params,omitempty"`
	}{t.Meta, t.Vars, t.Params})
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"states":[`)
	for i, s := range t.Steps {
		if i > 0 {
			buf.WriteByte(',')
		}
		body, err := itf.MarshalCanonical(s.State)
		if err != nil {
			return fmt.Errorf("encode trace: state %d: %w", i, err)
		}
		fmt.Fprintf(&buf, `{"#meta":{"index":%d}`, s.Index)
		if len(body) > 2 {
			buf.WriteByte(',')
			buf.Write(body[1 : len(body)-1])
		}
		buf.WriteByte('}')
	}
	buf.WriteString("]}\n")
	_, err = w.Write(buf.Bytes())
	return err
}
