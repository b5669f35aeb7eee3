package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/cid"
	"github.com/roach88/provgraph/internal/statement"
	"github.com/roach88/provgraph/internal/testutil"
)

const (
	registrar = "did:key:z6MkTest"
	fixedTime = "2024-06-27T14:36:35Z"

	helloCID = "bafkr4igxjga67jykbseaxdmmdgc5a5o3zp3htom2l6mrjznk7fvyggu6eq"
	emptyCID = "bafkr4ifpcne3t5pzugtkaqcn5i3nzskjtpfslsnnyejlpte2spfoihzsmi"
)

// testConfig writes a config whose stores live in a fresh temp dir.
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "provgraph.yaml")
	content := `graph_db: graph.db
attributes:
  backend: sqlite
  path: attrs.db
blobs:
  backend: fs
  path: blobs
canonicalization: jcs
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type result struct {
	stdout string
	stderr string
	code   int
}

// run executes the CLI against cfg.
func run(t *testing.T, cfg string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(append([]string{"--config", cfg}, args...), &stdout, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

// runJSON executes the CLI with --format json and decodes the response.
func runJSON(t *testing.T, cfg string, args ...string) (jsonResponse, int) {
	t.Helper()
	res := run(t, cfg, append([]string{"--format", "json"}, args...)...)
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp), "stdout: %s\nstderr: %s", res.stdout, res.stderr)
	return resp, res.code
}

type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func (r jsonResponse) decode(t *testing.T, v any) {
	t.Helper()
	require.NotNil(t, r.Data, "error: %+v", r.Error)
	require.NoError(t, json.Unmarshal(r.Data, v))
}

func newTestBuilder() *statement.Builder {
	clock := testutil.NewDeterministicClock()
	return statement.NewBuilder(cid.NewAddresser(nil), statement.WithClock(clock.Now))
}

// writeStatements writes sts as a JSON array into a temp file.
func writeStatements(t *testing.T, sts ...statement.Statement) string {
	t.Helper()
	data, err := json.Marshal(sts)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "statements.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
