package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeeds = `
tables:
  - name: color
    ddl: CREATE TABLE "{schema}"."{table}" (id INTEGER PRIMARY KEY, name TEXT NOT NULL)
    order_by: id
    rows:
      - {name: red}
      - {name: green}
  - name: note
    schema: aux
    ddl: CREATE TABLE "{schema}"."{table}" (body TEXT)
`

func setupConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seeds.yaml"), []byte(testSeeds), 0644))
	cfg := "database:\n  path: main.db\nschemas:\n  aux: aux.db\nseeds:\n  path: seeds.yaml\nlogging:\n  level: error\n"
	path := filepath.Join(dir, "rowcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	var buf bytes.Buffer
	parser, err := kong.New(&cli,
		kong.Name("rowcache"),
		kong.Writers(&buf, &buf),
		kong.Exit(func(int) { t.Fatalf("unexpected exit: %s", buf.String()) }),
	)
	require.NoError(t, err)

	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	cli.Globals.ctx = context.Background()
	cli.Globals.out = &buf
	err = kctx.Run(&cli.Globals)
	return buf.String(), err
}

func TestTablesListsSeededSchemas(t *testing.T) {
	cfg := setupConfig(t)

	out, err := run(t, "--config", cfg, "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "SCHEMA")
	assert.Regexp(t, `main\s+color\s+2\s+\d+\s+pk=id`, out)
	assert.Regexp(t, `aux\s+note\s+0`, out)

	out, err = run(t, "--config", cfg, "tables", "--schema", "aux")
	require.NoError(t, err)
	assert.NotContains(t, out, "color")
}

func TestExecDumpImport(t *testing.T) {
	cfg := setupConfig(t)

	out, err := run(t, "--config", cfg, "exec",
		`INSERT INTO color (name) VALUES ('blue')`,
		`INSERT INTO aux.note (body) VALUES ('hello')`)
	require.NoError(t, err)
	assert.Contains(t, out, "executed 2 statements")

	out, err = run(t, "--config", cfg, "dump", "--format", "yaml", "color", "aux.note")
	require.NoError(t, err)
	assert.Contains(t, out, "blue")
	assert.Contains(t, out, "hello")

	_, err = run(t, "--config", cfg, "exec", `INSERT INTO missing VALUES (1)`)
	assert.Error(t, err)

	dump := filepath.Join(t.TempDir(), "color.msgpack")
	_, err = run(t, "--config", cfg, "dump", "-o", dump, "color")
	require.NoError(t, err)

	out, err = run(t, "--config", cfg, "import", dump)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 rows into main.color")

	out, err = run(t, "--config", cfg, "tables")
	require.NoError(t, err)
	assert.Regexp(t, `main\s+color\s+6`, out)
}

func TestDumpUnknownTable(t *testing.T) {
	cfg := setupConfig(t)
	_, err := run(t, "--config", cfg, "dump", "nope")
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "dump", "--format", "csv")
	assert.Error(t, err)
}

func TestShowConfigAndVersion(t *testing.T) {
	cfg := setupConfig(t)

	out, err := run(t, "--config", cfg, "--db", "/tmp/other.db", "show-config")
	require.NoError(t, err)
	assert.Contains(t, out, "Database: /tmp/other.db")
	assert.Contains(t, out, "Schema aux:")

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rowcache "+version)
	assert.Contains(t, out, "SQLite driver:")
}

func TestInitWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "rowcache.yaml")
	t.Setenv("ROWCACHE_CONFIG", path)

	out, err := run(t, "--db", "app.db", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)
	require.FileExists(t, path)

	_, err = run(t, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, "init", "--force")
	require.NoError(t, err)

	out, err = run(t, "--config", path, "show-config")
	require.NoError(t, err)
	assert.Contains(t, out, "Database:")
}
