package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/attrstore"
	"github.com/roach88/provgraph/internal/graphstore"
	"github.com/roach88/provgraph/internal/manifest"
	"github.com/roach88/provgraph/internal/statement"
)

func TestIDCompute(t *testing.T) {
	cfg := testConfig(t)

	t.Run("raw json", func(t *testing.T) {
		res := run(t, cfg, "id", "compute", "--raw", writeFile(t, "doc.json", []byte(`{ "a" : 1 }`)))
		require.Equal(t, ExitSuccess, res.code, res.stderr)
		assert.Equal(t, "baga6yaq6edkzwzlc27e3cin4s5qioplypcio6tkctkwthjylibn2ud5aripvg\n", res.stdout)
	})

	t.Run("statement", func(t *testing.T) {
		s, err := newTestBuilder().NewData([]string{helloCID}, registrar, fixedTime)
		require.NoError(t, err)
		path := writeStatements(t, s)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		// a single object rather than an array
		single := writeFile(t, "single.json", bytes.TrimSuffix(bytes.TrimPrefix(data, []byte("[")), []byte("]")))

		resp, code := runJSON(t, cfg, "id", "compute", single)
		require.Equal(t, ExitSuccess, code)
		var out IDResult
		resp.decode(t, &out)
		assert.Equal(t, s.ID, out.ID)
		assert.Equal(t, "json-jcs", out.Codec)
		require.NotNil(t, out.Matches)
		assert.True(t, *out.Matches)
	})
}

func TestIDValidate(t *testing.T) {
	cfg := testConfig(t)
	file := writeFile(t, "hello.txt", []byte("hello world"))

	res := run(t, cfg, "id", "validate", file, "--expected", "urn:cid:"+helloCID)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, helloCID+"\n", res.stdout)

	resp, code := runJSON(t, cfg, "id", "validate", file, "--expected", emptyCID)
	assert.Equal(t, ExitFailure, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "IDENTITY_MISMATCH", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "doesn't match provided CID")

	res = run(t, cfg, "id", "validate", file)
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "required flag")
}

func TestIDParse(t *testing.T) {
	resp, code := runJSON(t, testConfig(t), "id", "parse", "urn:cid:"+helloCID)
	require.Equal(t, ExitSuccess, code)

	var info CIDInfo
	resp.decode(t, &info)
	assert.Equal(t, helloCID, info.CID)
	assert.Equal(t, uint64(1), info.Version)
	assert.Equal(t, "raw", info.Codec)
	assert.Equal(t, uint64(0x1e), info.HashCode)
	assert.Len(t, info.Digest, 64)
}

func TestStatementCreate_Golden(t *testing.T) {
	res := run(t, testConfig(t), "--format", "json", "statement", "create", "data",
		"--data", helloCID, "--registered-by", registrar, "--timestamp", fixedTime)
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "statement_create_data", []byte(res.stdout))
}

func TestStatementCreate_Errors(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"unknown kind", []string{"credential-vc"}, ExitCommandError, "cannot create"},
		{"empty data", []string{"data"}, ExitFailure, "CID list must not be empty."},
		{"computation without operator", []string{"computation", "--input", "a", "--output", "b"}, ExitFailure, "operatedBy"},
		{"bad metadata json", []string{"metadata", "--subject", "s", "--metadata-json", "{"}, ExitCommandError, "invalid --metadata-json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"statement", "create"}, tt.args...)
			args = append(args, "--registered-by", registrar)
			res := run(t, cfg, args...)
			assert.Equal(t, tt.code, res.code)
			assert.Contains(t, res.stderr, tt.want)
		})
	}
}

func TestStatementCreate_MetadataJSONStoresBlob(t *testing.T) {
	cfg := testConfig(t)

	resp, code := runJSON(t, cfg, "statement", "create", "metadata",
		"--subject", helloCID, "--metadata-json", `{"a":1}`, "--registered-by", registrar, "--timestamp", fixedTime)
	require.Equal(t, ExitSuccess, code)
	var s statement.Metadata
	resp.decode(t, &s)
	assert.Equal(t, "urn:cid:baga6yaq6edkzwzlc27e3cin4s5qioplypcio6tkctkwthjylibn2ud5aripvg", s.Metadata)

	res := run(t, cfg, "blob", "get", s.Metadata)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, `{"a":1}`, res.stdout)
}

func TestStatementRegisterAndGet(t *testing.T) {
	cfg := testConfig(t)
	b := newTestBuilder()
	comp, err := b.NewComputation(statement.ComputationSpec{
		Input: []string{helloCID}, Output: []string{emptyCID}, OperatedBy: registrar,
	}, registrar, fixedTime)
	require.NoError(t, err)
	did, err := b.NewDid(registrar, nil, registrar, fixedTime)
	require.NoError(t, err)

	resp, code := runJSON(t, cfg, "graph", "create", "root", "--id", "g1")
	require.Equal(t, ExitSuccess, code)
	var g graphstore.Graph
	resp.decode(t, &g)
	assert.Equal(t, graphstore.Graph{ID: "g1", Name: "root"}, g)

	resp, code = runJSON(t, cfg, "statement", "register", writeStatements(t, comp, did), "--graph", "g1")
	require.Equal(t, ExitSuccess, code)
	var reg RegisterResult
	resp.decode(t, &reg)
	assert.Equal(t, []string{comp.ID, did.ID}, reg.Registered)

	resp, code = runJSON(t, cfg, "statement", "get", comp.ID)
	require.Equal(t, ExitSuccess, code)
	var got statement.Computation
	resp.decode(t, &got)
	assert.Equal(t, comp.ID, got.ID)

	resp, code = runJSON(t, cfg, "graph", "get", "g1")
	require.Equal(t, ExitSuccess, code)
	var closure struct {
		ID         string           `json:"id"`
		Statements []map[string]any `json:"statements"`
	}
	resp.decode(t, &closure)
	var ids []string
	for _, s := range closure.Statements {
		ids = append(ids, s["@id"].(string))
	}
	assert.Equal(t, []string{comp.ID, did.ID}, ids)

	t.Run("tampered", func(t *testing.T) {
		tampered := *comp
		tampered.OperatedBy = "did:key:someone-else"
		resp, code := runJSON(t, cfg, "statement", "register", writeStatements(t, &tampered), "--graph", "g1")
		assert.Equal(t, ExitFailure, code)
		assert.Equal(t, "IDENTITY_MISMATCH", resp.Error.Code)

		resp, code = runJSON(t, cfg, "statement", "verify", writeStatements(t, comp, &tampered))
		assert.Equal(t, ExitFailure, code)
		assert.Equal(t, "IDENTITY_MISMATCH", resp.Error.Code)
	})

	t.Run("missing", func(t *testing.T) {
		resp, code := runJSON(t, cfg, "statement", "get", "urn:cid:"+helloCID)
		assert.Equal(t, ExitFailure, code)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})
}

func TestGraphHierarchy(t *testing.T) {
	cfg := testConfig(t)
	for _, args := range [][]string{
		{"root", "--id", "a"},
		{"child", "--id", "b", "--parent", "a"},
		{"grandchild", "--id", "c", "--parent", "b"},
	} {
		res := run(t, cfg, append([]string{"graph", "create"}, args...)...)
		require.Equal(t, ExitSuccess, res.code, res.stderr)
	}

	graphIDs := func(args ...string) []string {
		resp, code := runJSON(t, cfg, args...)
		require.Equal(t, ExitSuccess, code)
		var graphs []graphstore.Graph
		resp.decode(t, &graphs)
		var ids []string
		for _, g := range graphs {
			ids = append(ids, g.ID)
		}
		return ids
	}

	assert.Equal(t, []string{"b", "c", "a"}, graphIDs("graph", "list"))
	assert.Equal(t, []string{"b", "c"}, graphIDs("graph", "children", "a"))
	assert.Equal(t, []string{"c", "b", "a"}, graphIDs("graph", "ancestors", "c"))

	resp, code := runJSON(t, cfg, "graph", "create", "again", "--id", "a")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "ALREADY_EXISTS", resp.Error.Code)

	resp, code = runJSON(t, cfg, "graph", "create", "orphan", "--parent", "nope")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestGraphAssociations(t *testing.T) {
	cfg := testConfig(t)
	b := newTestBuilder()
	assoc, err := b.NewAssociation(helloCID, "did:web:example.com", registrar, fixedTime)
	require.NoError(t, err)

	require.Equal(t, ExitSuccess, run(t, cfg, "graph", "create", "g", "--id", "g1").code)
	require.Equal(t, ExitSuccess, run(t, cfg, "graph", "create", "h", "--id", "g2").code)
	require.Equal(t, ExitSuccess, run(t, cfg, "statement", "register", writeStatements(t, assoc), "--graph", "g1").code)

	resp, code := runJSON(t, cfg, "graph", "associate", assoc.ID, "g2")
	require.Equal(t, ExitSuccess, code)
	var linked []string
	resp.decode(t, &linked)
	assert.Equal(t, []string{"g1", "g2"}, linked)

	resp, code = runJSON(t, cfg, "graph", "associations", helloCID)
	require.Equal(t, ExitSuccess, code)
	var out AssociationsResult
	resp.decode(t, &out)
	assert.Equal(t, []string{"did:web:example.com"}, out.Values)

	resp, code = runJSON(t, cfg, "graph", "associations", "--reverse", "did:web:example.com")
	require.Equal(t, ExitSuccess, code)
	resp.decode(t, &out)
	assert.Equal(t, "subjects", out.Direction)
	assert.Equal(t, []string{"urn:cid:" + helloCID}, out.Values)
}

func TestAttrCommands(t *testing.T) {
	cfg := testConfig(t)
	b := newTestBuilder()
	train, err := b.NewData([]string{helloCID}, registrar, fixedTime)
	require.NoError(t, err)
	test, err := b.NewData([]string{emptyCID}, registrar, fixedTime)
	require.NoError(t, err)

	require.Equal(t, ExitSuccess, run(t, cfg, "attr", "register", writeStatements(t, train), "--attrs", `{"stage":"train","epoch":4}`).code)
	require.Equal(t, ExitSuccess, run(t, cfg, "attr", "register", writeStatements(t, test), "--attrs", `{"stage":"test","epoch":1}`).code)

	query := func(args ...string) []string {
		t.Helper()
		resp, code := runJSON(t, cfg, append([]string{"attr", "query"}, args...)...)
		require.Equal(t, ExitSuccess, code)
		var records []struct {
			Statement  map[string]any `json:"statement"`
			Attributes map[string]any `json:"attributes"`
		}
		resp.decode(t, &records)
		ids := []string{}
		for _, r := range records {
			ids = append(ids, r.Statement["@id"].(string))
		}
		return ids
	}

	assert.ElementsMatch(t, []string{train.ID, test.ID}, query())
	assert.Equal(t, []string{train.ID}, query("attributes.epoch > 3"))
	assert.Equal(t, []string{test.ID}, query(`attributes.stage == "test" && statementType == "DataRegistration"`))
	assert.Empty(t, query(`attributes.epoch == "4"`))

	resp, code := runJSON(t, cfg, "attr", "query", "attributes.epoch >= 3")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "FILTER_SYNTAX", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "Unsupported function call: _>=_")

	resp, code = runJSON(t, cfg, "attr", "unique")
	require.Equal(t, ExitSuccess, code)
	var unique map[string]attrstore.UniqueValues
	resp.decode(t, &unique)
	assert.Equal(t, 2, unique["stage"].N)
	assert.Equal(t, []any{"test", "train"}, unique["stage"].Values)

	require.Equal(t, ExitSuccess, run(t, cfg, "attr", "update", train.ID, "--attrs", `{"owner":"alice"}`).code)
	require.Equal(t, ExitSuccess, run(t, cfg, "attr", "remove", train.ID+","+test.ID, "--keys", "epoch").code)

	resp, code = runJSON(t, cfg, "attr", "get", train.ID)
	require.Equal(t, ExitSuccess, code)
	var rec struct {
		Attributes map[string]any `json:"attributes"`
	}
	resp.decode(t, &rec)
	assert.Equal(t, map[string]any{"stage": "train", "owner": "alice"}, rec.Attributes)

	res := run(t, cfg, "attr", "delete")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Contains(t, res.stderr, "--all")

	resp, code = runJSON(t, cfg, "attr", "delete", `attributes.owner == "alice"`)
	require.Equal(t, ExitSuccess, code)
	var deleted DeleteResult
	resp.decode(t, &deleted)
	assert.Equal(t, int64(1), deleted.Deleted)

	resp, code = runJSON(t, cfg, "attr", "count")
	require.Equal(t, ExitSuccess, code)
	var count map[string]int64
	resp.decode(t, &count)
	assert.Equal(t, int64(1), count["count"])
}

func TestBlobCommands(t *testing.T) {
	cfg := testConfig(t)
	file := writeFile(t, "hello.txt", []byte("hello world"))

	res := run(t, cfg, "blob", "put", file)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, helloCID+"\n", res.stdout)

	res = run(t, cfg, "blob", "get", helloCID)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "hello world", res.stdout)

	out := filepath.Join(t.TempDir(), "copy.txt")
	require.Equal(t, ExitSuccess, run(t, cfg, "blob", "get", helloCID, "-o", out).code)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	resp, code := runJSON(t, cfg, "blob", "exists", emptyCID)
	require.Equal(t, ExitSuccess, code)
	var exists map[string]bool
	resp.decode(t, &exists)
	assert.False(t, exists["exists"])

	resp, code = runJSON(t, cfg, "blob", "get", emptyCID)
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	resp, code = runJSON(t, cfg, "blob", "put", file, "--expected", emptyCID)
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "IDENTITY_MISMATCH", resp.Error.Code)
}

func TestManifestExportImport(t *testing.T) {
	source := testConfig(t)
	b := newTestBuilder()
	comp, err := b.NewComputation(statement.ComputationSpec{
		Input: []string{helloCID}, Output: []string{emptyCID}, OperatedBy: registrar,
	}, registrar, fixedTime)
	require.NoError(t, err)

	require.Equal(t, ExitSuccess, run(t, source, "graph", "create", "root", "--id", "g1").code)
	require.Equal(t, ExitSuccess, run(t, source, "statement", "register", writeStatements(t, comp), "--graph", "g1").code)
	require.Equal(t, ExitSuccess, run(t, source, "blob", "put", writeFile(t, "hello.txt", []byte("hello world"))).code)

	for _, version := range []string{manifest.VersionV3, manifest.VersionV4} {
		t.Run("v"+version, func(t *testing.T) {
			bundle := filepath.Join(t.TempDir(), "bundle.json.zst")
			res := run(t, source, "manifest", "export", "--graph", "g1", "--version", version,
				"--compress", "--contexts", "-o", bundle)
			require.Equal(t, ExitSuccess, res.code, res.stderr)

			data, err := os.ReadFile(bundle)
			require.NoError(t, err)
			raw, err := manifest.ReadRaw(bytes.NewReader(data))
			require.NoError(t, err)
			assert.True(t, strings.Contains(string(raw), helloCID))

			target := testConfig(t)
			resp, code := runJSON(t, target, "manifest", "import", bundle)
			require.Equal(t, ExitSuccess, code)
			var imported ImportResult
			resp.decode(t, &imported)
			assert.Equal(t, version, imported.Version)
			assert.Equal(t, 1, imported.Statements)
			assert.Equal(t, 1, imported.Blobs)

			res = run(t, target, "blob", "get", helloCID)
			require.Equal(t, ExitSuccess, res.code, res.stderr)
			assert.Equal(t, "hello world", res.stdout)

			require.Equal(t, ExitSuccess, run(t, target, "statement", "get", comp.ID).code)
			if version == manifest.VersionV4 {
				require.Equal(t, ExitSuccess, run(t, target, "graph", "get", "g1").code)
			}
		})
	}
}

func TestManifestMerge(t *testing.T) {
	cfg := testConfig(t)
	b := newTestBuilder()
	first, err := b.NewData([]string{helloCID}, registrar, fixedTime)
	require.NoError(t, err)
	second, err := b.NewData([]string{emptyCID}, registrar, fixedTime)
	require.NoError(t, err)

	write := func(s statement.Statement, blobs map[string]string) string {
		m, err := manifest.New([]statement.Statement{s}, blobs, manifest.Options{})
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, manifest.Write(&buf, m, false))
		return writeFile(t, "bundle.json", buf.Bytes())
	}

	out := filepath.Join(t.TempDir(), "merged.json")
	res := run(t, cfg, "manifest", "merge",
		write(first, map[string]string{"k": "left"}),
		write(second, map[string]string{"k": "right"}),
		"-o", out)
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	merged, err := manifest.Read(f)
	require.NoError(t, err)
	assert.Len(t, merged.Statements, 2)
	assert.Equal(t, "right", merged.Blobs["k"])
}

func TestMetricsCommand(t *testing.T) {
	cfg := testConfig(t)
	require.Equal(t, ExitSuccess, run(t, cfg, "graph", "create", "root", "--id", "g1").code)

	res := run(t, cfg, "metrics")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, `provgraph_storage_count{type="graphs"} 1`)
	assert.Contains(t, res.stdout, `provgraph_storage_count{type="attributes"} 0`)
}
