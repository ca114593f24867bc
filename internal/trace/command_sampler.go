package trace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Placeholders substituted in CommandSampler arguments.
const (
	PlaceholderOut   = "{out}"
	PlaceholderSeed  = "{seed}"
	PlaceholderIndex = "{index}"
)

// CommandSampler runs an external trace generator once per sample and reads
// the ITF file it writes. A typical command is
//
//	quint run --mbt --max-samples=1 --seed={seed} --out-itf={out} model.qnt
//
// The generator is opaque: only its exit status and output file matter.
type CommandSampler struct {
	// Args is the command and its arguments, with placeholders.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Seed is added to the sample index to form {seed}.
	Seed int64

	// Limit bounds the number of samples. Zero means unbounded.
	Limit int
}

// Sample implements Sampler.
func (s *CommandSampler) Sample(ctx context.Context, i int) (*Trace, error) {
	if len(s.Args) == 0 {
		return nil, fmt.Errorf("trace command is empty")
	}
	if i < 0 || (s.Limit > 0 && i >= s.Limit) {
		return nil, ErrNoMoreSamples
	}

	tmp, err := os.MkdirTemp("", "conform-trace-*")
	if err != nil {
		return nil, fmt.Errorf("sample %d: %w", i, err)
	}
	defer os.RemoveAll(tmp)

	out := filepath.Join(tmp, "trace.itf.json")
	seed := strconv.FormatInt(s.Seed+int64(i), 10)
	repl := strings.NewReplacer(
		PlaceholderOut, out,
		PlaceholderSeed, seed,
		PlaceholderIndex, strconv.Itoa(i),
	)
	args := make([]string, len(s.Args))
	for j, a := range s.Args {
		args[j] = repl.Replace(a)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = s.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("sample %d: %s: %w: %s", i, args[0], err, strings.TrimSpace(stderr.String()))
	}

	tr, err := ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("sample %d: %w", i, err)
	}
	tr.Name = fmt.Sprintf("%s (seed %s)", strings.Join(s.Args, " "), seed)
	return tr, nil
}
