package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/ballotdriver"
	"github.com/roach88/conform/internal/harness"
)

// suitePath is the ballot suite shared with the harness tests.
var suitePath = filepath.Join("..", "harness", "testdata", "suite.yaml")

func testRegistry() *harness.Registry {
	reg := harness.NewRegistry()
	reg.MustRegister("ballot", ballotdriver.New)
	reg.MustRegister("ballot-buggy", ballotdriver.NewBuggy)
	return reg
}

// testOptions returns root options with the ballot drivers, fixed run ids
// and a history database in a temporary directory.
func testOptions(t *testing.T, format string, runIDs ...string) *RootOptions {
	t.Helper()
	t.Setenv("CONFORM_DB_PATH", filepath.Join(t.TempDir(), "history.db"))
	t.Setenv("CONFORM_LOG_LEVEL", "error")
	return &RootOptions{
		Format:   format,
		NoColor:  true,
		Registry: testRegistry(),
		RunIDs:   harness.NewFixedGenerator(runIDs...),
	}
}

// fixturesDir returns the absolute path of the harness fixtures.
func fixturesDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", "harness", "testdata"))
	require.NoError(t, err)
	return dir
}

// writeSuite writes a one-test suite over a ballot fixture.
func writeSuite(t *testing.T, test, driver, fixture string) string {
	t.Helper()
	dir := fixturesDir(t)
	body := "name: adhoc\ntests:\n" +
		"  - name: " + test + "\n" +
		"    manifest: " + filepath.Join(dir, "ballot.cue") + "\n" +
		"    driver: " + driver + "\n" +
		"    traces: [\"" + filepath.Join(dir, "traces", fixture) + "\"]\n"
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs cmd with args and returns stdout and the error.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
