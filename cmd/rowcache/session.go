package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rowcache/internal/config"
	"rowcache/internal/loader"
	"rowcache/internal/logging"
	"rowcache/internal/repository"
	"rowcache/internal/repository/sqlite"
)

// session is an open controller with every table of every schema mounted.
type session struct {
	cfg  *config.Config
	ctrl *repository.Controller
}

func loadConfig(g *Globals) (*config.Config, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if g.Config != "" {
		cfg, path, err = config.LoadFromPath(g.Config)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if g.DB != "" {
		cfg.Database.Path = g.DB
	}
	if g.Seeds != "" {
		cfg.Seeds.Path = g.Seeds
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}

	logging.InitLogger(cfg.LogSettings())
	if path != "" {
		logging.Debug("config loaded", "path", path)
	}
	return cfg, nil
}

func openSession(g *Globals) (*session, error) {
	ctx := g.context()
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	ctrl := repository.NewController()
	if err := ctrl.Open(cfg.Database.Path); err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, ctrl: ctrl}

	if err := s.mountAll(ctx); err != nil {
		return nil, errors.Join(err, ctrl.Shutdown(ctx, false))
	}
	return s, nil
}

func (s *session) mountAll(ctx context.Context) error {
	for _, name := range s.cfg.SchemaNames() {
		if err := s.ctrl.Attach(ctx, name, s.cfg.Schemas[name], mountCatalog(name)); err != nil {
			return err
		}
	}

	if s.cfg.Seeds.Path != "" {
		sf, err := loader.LoadYAML(s.cfg.Seeds.Path)
		if err != nil {
			return fmt.Errorf("seed file %s: %w", s.cfg.Seeds.Path, err)
		}
		if _, err := sf.Mount(ctx, s.ctrl); err != nil {
			return err
		}
	}

	return mountCatalog("")(ctx, s.ctrl)
}

// mountCatalog mounts every table of schema that is not registered yet.
func mountCatalog(schema string) func(ctx context.Context, c *repository.Controller) error {
	return func(ctx context.Context, c *repository.Controller) error {
		names, err := sqlite.Tables(ctx, c.DB(), schema)
		if err != nil {
			return err
		}
		for _, name := range names {
			if _, err := c.Table(schema, name); err == nil {
				continue
			}
			if _, err := c.Mount(ctx, repository.NewCatalogTable(schema, name)); err != nil {
				return err
			}
		}
		return c.CompleteRegistration(ctx, schema)
	}
}

func (s *session) close(ctx context.Context) error {
	return s.ctrl.Shutdown(ctx, s.cfg.SaveOnShutdown())
}

// withSession opens a session, runs fn and shuts the session down.
func withSession(g *Globals, fn func(ctx context.Context, s *session) error) (err error) {
	s, err := openSession(g)
	if err != nil {
		return err
	}
	ctx := g.context()
	defer func() {
		err = errors.Join(err, s.close(context.WithoutCancel(ctx)))
	}()
	return fn(ctx, s)
}

// lookup resolves "table" or "schema.table".
func (s *session) lookup(name string) (*repository.Table, error) {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return s.ctrl.Table(schema, table)
	}
	return s.ctrl.Table("", name)
}
