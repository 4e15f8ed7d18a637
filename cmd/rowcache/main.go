// Command rowcache opens a SQLite database with its attached schemas,
// mounts every table into the row cache and works with the cached rows.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

const version = "0.1.0"

// Globals are the flags shared by every command.
type Globals struct {
	Config   string `name:"config" short:"c" help:"Config file path (default: search ROWCACHE_CONFIG, ./rowcache.yaml, ~/.config/rowcache)" type:"path"`
	DB       string `name:"db" help:"Main database path, overrides the config"`
	Seeds    string `name:"seeds" help:"Seed file applied to empty tables, overrides the config" type:"path"`
	LogLevel string `name:"log-level" help:"Log level (debug, info, warn, error), overrides the config"`

	ctx context.Context
	out io.Writer
}

func (g *Globals) context() context.Context {
	if g.ctx == nil {
		return context.Background()
	}
	return g.ctx
}

func (g *Globals) stdout() io.Writer {
	if g.out == nil {
		return os.Stdout
	}
	return g.out
}

// CLI defines the command-line interface for rowcache.
type CLI struct {
	Globals

	Tables     TablesCmd  `cmd:"" help:"List mounted tables with row counts"`
	Dump       DumpCmd    `cmd:"" help:"Export cached rows as JSON, YAML or MessagePack"`
	Import     ImportCmd  `cmd:"" help:"Import rows from a dump file"`
	Exec       ExecCmd    `cmd:"" help:"Run SQL statements in one transaction and reload"`
	Watch      WatchCmd   `cmd:"" help:"Reload the cache whenever a database file changes"`
	ShowConfig ConfigCmd  `cmd:"" name:"show-config" help:"Print the effective configuration"`
	Init       InitCmd    `cmd:"" help:"Write a new config file"`
	Version    VersionCmd `cmd:"" help:"Print version information"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("rowcache"),
		kong.Description("rowcache - cached, change-tracked access to SQLite tables"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cli.Globals.ctx = ctx

	err := kctx.Run(&cli.Globals)
	kctx.FatalIfErrorf(err)
}
