package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"

	"rowcache/internal/codec"
	"rowcache/internal/config"
	"rowcache/internal/logging"
	"rowcache/internal/repository"
	"rowcache/internal/repository/sqlite"
	"rowcache/internal/watcher"
)

// TablesCmd lists the mounted tables.
type TablesCmd struct {
	Schema string `help:"Only list tables of this schema"`
}

func (c *TablesCmd) Run(g *Globals) error {
	return withSession(g, func(ctx context.Context, s *session) error {
		tw := tabwriter.NewWriter(g.stdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SCHEMA\tTABLE\tROWS\tCOLUMNS\tFLAGS")
		for _, t := range s.ctrl.Tables(c.Schema) {
			var flags []string
			if t.ReadOnly() {
				flags = append(flags, "read-only")
			}
			if pk := t.PrimaryKey(); pk != "" {
				flags = append(flags, "pk="+pk)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
				t.Schema(), t.Name(), t.Len(), len(t.Columns()), strings.Join(flags, ","))
		}
		return tw.Flush()
	})
}

// DumpCmd exports cached rows.
type DumpCmd struct {
	Tables []string `arg:"" optional:"" help:"Tables to dump as [schema.]table (default: all)"`
	Format string   `short:"f" help:"Output format (json, yaml, msgpack); default from --out extension, else json"`
	Out    string   `short:"o" help:"Output file (default: stdout)" type:"path"`
}

func (c *DumpCmd) codec() (codec.Codec, error) {
	switch {
	case c.Format != "":
		return codec.ForFormat(c.Format)
	case c.Out != "":
		return codec.ForPath(c.Out)
	}
	return codec.NewJSONCodec(), nil
}

func (c *DumpCmd) Run(g *Globals) error {
	enc, err := c.codec()
	if err != nil {
		return err
	}

	return withSession(g, func(ctx context.Context, s *session) error {
		var tables []*repository.Table
		if len(c.Tables) == 0 {
			tables = s.ctrl.Tables("")
		}
		for _, name := range c.Tables {
			t, err := s.lookup(name)
			if err != nil {
				return err
			}
			tables = append(tables, t)
		}

		data := make([]repository.TableData, 0, len(tables))
		for _, t := range tables {
			data = append(data, t.Export())
		}

		w := g.stdout()
		if c.Out != "" {
			f, err := os.Create(c.Out)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := enc.Export(data, w); err != nil {
			return err
		}
		logging.InfoContext(ctx, "dumped tables", "tables", len(data), "format", enc.Format())
		return nil
	})
}

// ImportCmd imports a dump file into the mounted tables.
type ImportCmd struct {
	File   string `arg:"" help:"Dump file to import" type:"existingfile"`
	Format string `short:"f" help:"Input format (json, yaml, msgpack); default from the file extension"`
}

func (c *ImportCmd) Run(g *Globals) error {
	var (
		dec codec.Codec
		err error
	)
	if c.Format != "" {
		dec, err = codec.ForFormat(c.Format)
	} else {
		dec, err = codec.ForPath(c.File)
	}
	if err != nil {
		return err
	}

	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	data, err := dec.Parse(f)
	if err != nil {
		return err
	}

	return withSession(g, func(ctx context.Context, s *session) error {
		for _, td := range data {
			t, err := s.ctrl.Table(td.Schema, td.Table)
			if err != nil {
				return err
			}
			n, err := t.Import(ctx, td)
			if err != nil {
				return err
			}
			fmt.Fprintf(g.stdout(), "imported %d rows into %s\n", n, t.FullName())
		}
		return nil
	})
}

// ExecCmd runs statements atomically and reloads the cache.
type ExecCmd struct {
	Statements []string `arg:"" help:"SQL statements, executed in order in one transaction"`
}

func (c *ExecCmd) Run(g *Globals) error {
	return withSession(g, func(ctx context.Context, s *session) error {
		if err := s.ctrl.Coordinator().ExecStatements(ctx, c.Statements...); err != nil {
			return err
		}
		if err := s.ctrl.Reload(ctx); err != nil {
			return err
		}
		fmt.Fprintf(g.stdout(), "executed %d statements\n", len(c.Statements))
		return nil
	})
}

// WatchCmd reloads the cache when another process writes the database.
type WatchCmd struct{}

func (c *WatchCmd) Run(g *Globals) error {
	return withSession(g, func(ctx context.Context, s *session) error {
		var paths []string
		if isFile(s.ctrl.Path()) {
			paths = append(paths, s.ctrl.Path())
		}
		for _, name := range s.ctrl.Schemas() {
			if p, ok := s.ctrl.SchemaPath(name); ok && isFile(p) {
				paths = append(paths, p)
			}
		}
		if len(paths) == 0 {
			return fmt.Errorf("no database files to watch")
		}

		err := watcher.WatchMultiple(ctx, paths, s.cfg.Watch.Debounce.Duration(), func(path string) {
			if err := s.ctrl.Reload(ctx); err != nil {
				logging.ErrorContext(ctx, "reload failed", "path", path, "error", err)
				return
			}
			printCounts(g.stdout(), s.ctrl.Tables(""))
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

func isFile(path string) bool {
	return path != "" && path != sqlite.MemoryPath && !strings.HasPrefix(path, "file:")
}

func printCounts(w io.Writer, tables []*repository.Table) {
	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		parts = append(parts, fmt.Sprintf("%s=%d", t.FullName(), t.Len()))
	}
	fmt.Fprintf(w, "reloaded: %s\n", strings.Join(parts, " "))
}

// ConfigCmd prints the effective configuration.
type ConfigCmd struct{}

func (c *ConfigCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	fmt.Fprintln(g.stdout(), cfg.Summary())
	return nil
}

// InitCmd writes a config file with the defaults and the global overrides.
type InitCmd struct {
	Path  string `arg:"" optional:"" help:"Where to write the config (default: ROWCACHE_CONFIG or ~/.config/rowcache/config.yaml)" type:"path"`
	Force bool   `help:"Overwrite an existing file"`
}

func (c *InitCmd) Run(g *Globals) error {
	path := c.Path
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.DefaultConfig()
	if g.DB != "" {
		cfg.Database.Path = g.DB
	}
	if g.Seeds != "" {
		cfg.Seeds.Path = g.Seeds
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(g.stdout(), "wrote %s\n", path)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.stdout(), "rowcache %s\n", version)
	fmt.Fprintf(g.stdout(), "  SQLite driver: %s (%s, %s)\n", sqlite.DriverName(), sqlite.DriverType(), sqlite.DriverPackage())
	fmt.Fprintf(g.stdout(), "  Go: %s\n", runtime.Version())
	return nil
}
