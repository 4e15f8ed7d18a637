package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/google/uuid"

	"rowcache/internal/logging"
	"rowcache/internal/repository/sqlite"
)

// Definition describes an application table. Implementations embed Table,
// which supplies the unexported part of the interface.
type Definition interface {
	TableName() string
	// SchemaName returns the attached schema the table lives in; empty means main.
	SchemaName() string
	// DDL returns the CREATE statement used when the table does not exist.
	// The tokens {schema} and {table} are replaced before execution.
	DDL() string
	// Configure sets flags, defaults and the primary key after the columns
	// have been read from the catalog.
	Configure(t *Table) error

	base() *Table
}

// Seeder supplies the rows inserted into a table that exists but is empty.
type Seeder interface {
	SeedRows() []map[string]any
}

// RelationBuilder wires the table's relations during the first phase of
// CompleteRegistration.
type RelationBuilder interface {
	BuildRelations(c *Controller) error
}

// ComputedColumnBuilder adds the table's computed columns during the second
// phase of CompleteRegistration. It is called again after a failure, so it
// must tolerate columns it already added.
type ComputedColumnBuilder interface {
	BuildComputedColumns(c *Controller) error
}

// Finalizer runs during the last phase of CompleteRegistration and after Reload.
type Finalizer interface {
	Finalize(ctx context.Context, c *Controller) error
}

// ShutdownNotifier is told about an imminent shutdown before anything is saved.
type ShutdownNotifier interface {
	OnShutdown()
}

// DefaultRowFiller adjusts the row built by AddDefaultRow before it is saved.
type DefaultRowFiller interface {
	FillDefaultRow(r *Row) error
}

// DefaultLoader supplies the options used when the controller loads the table.
type DefaultLoader interface {
	DefaultLoadOptions() LoadOptions
}

// OpenFunc opens the backing database.
type OpenFunc func(path string) (*sql.DB, error)

// Option configures a Controller.
type Option func(*Controller)

// WithOpenFunc replaces the function used to open the backing database.
func WithOpenFunc(fn OpenFunc) Option {
	return func(c *Controller) {
		c.openDB = fn
	}
}

// Controller owns the connection and the registry of tables, relations and
// attached schemas. It is not safe for concurrent use.
type Controller struct {
	openDB OpenFunc
	db     *sql.DB
	path   string

	schemas   map[string]string // attached name -> file path
	tables    []*Table          // registration order
	byKey     map[string]*Table // schema.table
	byType    map[reflect.Type]*Table
	relations map[string]*Relation
}

// NewController returns a controller that is not yet open.
func NewController(opts ...Option) *Controller {
	c := &Controller{openDB: sqlite.Open}
	c.reset()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) reset() {
	c.schemas = make(map[string]string)
	c.tables = nil
	c.byKey = make(map[string]*Table)
	c.byType = make(map[reflect.Type]*Table)
	c.relations = make(map[string]*Relation)
}

// Open opens the database at path, creating the file if needed.
// It does nothing when the controller is already open.
func (c *Controller) Open(path string) error {
	if c.db != nil {
		return nil
	}
	db, err := c.openDB(path)
	if err != nil {
		return err
	}
	c.db = db
	c.path = path
	logging.Info("database opened", "path", path, "driver", sqlite.DriverType())
	return nil
}

// IsOpen reports whether the controller holds a connection.
func (c *Controller) IsOpen() bool {
	return c.db != nil
}

// Path returns the path passed to Open.
func (c *Controller) Path() string {
	return c.path
}

// DB returns the underlying connection, or nil when the controller is closed.
func (c *Controller) DB() *sql.DB {
	return c.db
}

func (c *Controller) conn() (*sql.DB, error) {
	if c.db == nil {
		return nil, ErrNotOpen
	}
	return c.db, nil
}

// Begin starts a transaction on the controller's connection.
func (c *Controller) Begin(ctx context.Context) (*Tx, error) {
	db, err := c.conn()
	if err != nil {
		return nil, err
	}
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx, id: uuid.New()}
	logging.Debug("transaction started", "tx_id", tx.ID())
	return tx, nil
}

// Coordinator returns a coordinator for multi-statement and multi-table
// transactions on this controller.
func (c *Controller) Coordinator() *Coordinator {
	return &Coordinator{ctrl: c}
}

// Attach mounts the database at path as schema name and calls init, which
// is expected to register the schema's tables. It does nothing when name is
// already attached. If init fails the schema is detached again.
func (c *Controller) Attach(ctx context.Context, name, path string, init func(ctx context.Context, c *Controller) error) error {
	if _, ok := c.schemas[name]; ok {
		return nil
	}
	if name == "" || strings.EqualFold(name, sqlite.MainSchema) {
		return fmt.Errorf("repository: cannot attach schema %q", name)
	}
	db, err := c.conn()
	if err != nil {
		return err
	}
	if err := sqlite.Attach(ctx, db, name, path); err != nil {
		return err
	}
	if init != nil {
		if err := init(ctx, c); err != nil {
			c.dropSchema(name)
			if detachErr := sqlite.Detach(ctx, db, name); detachErr != nil {
				err = errors.Join(err, detachErr)
			}
			return fmt.Errorf("failed to initialize schema %s: %w", name, err)
		}
	}
	c.schemas[name] = path
	logging.InfoContext(ctx, "schema attached", "schema", name, "path", path, "tables", len(c.Tables(name)))
	return nil
}

// Detach saves and forgets every table of schema name, then unmounts it.
// It does nothing when name is not attached.
func (c *Controller) Detach(ctx context.Context, name string) error {
	if _, ok := c.schemas[name]; !ok {
		return nil
	}
	db, err := c.conn()
	if err != nil {
		return err
	}
	for _, t := range c.Tables(name) {
		if err := t.Save(ctx); err != nil {
			return err
		}
	}
	c.dropSchema(name)
	if err := sqlite.Detach(ctx, db, name); err != nil {
		return err
	}
	delete(c.schemas, name)
	logging.InfoContext(ctx, "schema detached", "schema", name)
	return nil
}

// dropSchema clears and unregisters every table of schema together with
// the relations and computed columns that reach into it.
func (c *Controller) dropSchema(schema string) {
	dropped := c.Tables(schema)
	for _, t := range dropped {
		t.Clear()
		delete(c.byKey, t.FullName())
		for typ, bt := range c.byType {
			if bt == t {
				delete(c.byType, typ)
			}
		}
	}
	c.tables = slices.DeleteFunc(c.tables, func(t *Table) bool {
		return t.Schema() == schema
	})
	for name, rel := range c.relations {
		if rel.touches(schema) {
			delete(c.relations, name)
		}
	}
	for _, t := range c.tables {
		t.dropComputedFor(schema)
		t.bus.drop(func(l ChangeListener) bool {
			cc, ok := l.(*ComputedColumn)
			return ok && cc.owner.Schema() == schema
		})
	}
}

// Schemas returns main followed by the sorted attached schema names.
func (c *Controller) Schemas() []string {
	names := make([]string, 0, len(c.schemas)+1)
	for name := range c.schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	return append([]string{sqlite.MainSchema}, names...)
}

// SchemaPath returns the file an attached schema was mounted from.
func (c *Controller) SchemaPath(name string) (string, bool) {
	path, ok := c.schemas[name]
	return path, ok
}

// Table returns the registered table schema.name. An empty schema means main.
func (c *Controller) Table(schema, name string) (*Table, error) {
	key := sqlite.SchemaOrMain(schema) + "." + name
	t, ok := c.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotRegistered, key)
	}
	return t, nil
}

// Tables returns the tables registered in schema in registration order.
// An empty schema returns every table.
func (c *Controller) Tables(schema string) []*Table {
	if schema == "" {
		return slices.Clone(c.tables)
	}
	var out []*Table
	for _, t := range c.tables {
		if t.Schema() == schema {
			out = append(out, t)
		}
	}
	return out
}

// tablePtr constrains RegisterTable's type parameter to pointers of
// application table types.
type tablePtr[T any] interface {
	*T
	Definition
}

// RegisterTable creates, seeds and loads the application table T and adds it
// to the registry.
func RegisterTable[T any, PT tablePtr[T]](ctx context.Context, c *Controller) (PT, error) {
	typ := reflect.TypeFor[T]()
	if _, ok := c.byType[typ]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableAlreadyRegistered, typ)
	}
	def := PT(new(T))
	t, err := c.mount(ctx, def)
	if err != nil {
		return nil, err
	}
	c.byType[typ] = t
	return def, nil
}

// TableOf returns the registered instance of application table T.
func TableOf[T any, PT tablePtr[T]](c *Controller) (PT, error) {
	typ := reflect.TypeFor[T]()
	t, ok := c.byType[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotRegistered, typ)
	}
	return t.def.(PT), nil
}

// Mount registers def without binding it to a Go type. It is the untyped
// counterpart of RegisterTable.
func (c *Controller) Mount(ctx context.Context, def Definition) (*Table, error) {
	return c.mount(ctx, def)
}

func (c *Controller) mount(ctx context.Context, def Definition) (*Table, error) {
	db, err := c.conn()
	if err != nil {
		return nil, err
	}

	schema, name := def.SchemaName(), def.TableName()
	key := sqlite.SchemaOrMain(schema) + "." + name
	if _, ok := c.byKey[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableAlreadyRegistered, key)
	}

	t := def.base()
	*t = Table{
		ctrl:   c,
		def:    def,
		schema: schema,
		name:   name,
		byName: make(map[string]*Column),
	}

	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, tableErr(t, "register", err)
	}
	if !exists {
		if err := t.create(ctx, db); err != nil {
			return nil, err
		}
	}
	if err := t.readColumns(ctx); err != nil {
		return nil, tableErr(t, "register", err)
	}
	if err := def.Configure(t); err != nil {
		return nil, tableErr(t, "configure", err)
	}

	if s, ok := def.(Seeder); ok {
		hasRows, err := t.HasRows(ctx)
		if err != nil {
			return nil, tableErr(t, "register", err)
		}
		if !hasRows {
			if err := c.seed(ctx, t, s.SeedRows()); err != nil {
				return nil, err
			}
		}
	}

	if err := t.Load(ctx, t.defaultLoadOptions()); err != nil {
		return nil, err
	}

	c.tables = append(c.tables, t)
	c.byKey[key] = t
	logging.InfoContext(ctx, "table registered", "table", key, "created", !exists, "rows", t.Len())
	return t, nil
}

func (t *Table) create(ctx context.Context, db *sql.DB) error {
	ddl := t.def.DDL()
	if strings.TrimSpace(ddl) == "" {
		return tableErr(t, "create", ErrEmptyDDL)
	}
	ddl = strings.NewReplacer("{schema}", t.Schema(), "{table}", t.name).Replace(ddl)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return tableErr(t, "create", fmt.Errorf("failed to execute DDL: %w", err))
	}
	logging.DebugContext(ctx, "table created", "table", t.FullName())
	return nil
}

func (t *Table) defaultLoadOptions() LoadOptions {
	if l, ok := t.def.(DefaultLoader); ok {
		return l.DefaultLoadOptions()
	}
	return LoadOptions{}
}

// seed inserts rows into the empty table t inside one transaction.
func (c *Controller) seed(ctx context.Context, t *Table, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := c.Begin(ctx)
	if err != nil {
		return tableErr(t, "seed", err)
	}
	ctx = logging.WithTxID(ctx, tx.ID())
	for i, values := range rows {
		r := t.newDefaultRow()
		for name, v := range values {
			col := t.Column(name)
			if col == nil || col.computed != nil || name == RowIDAlias {
				_ = tx.Rollback()
				return tableErr(t, "seed", fmt.Errorf("row %d: %w: %s", i+1, ErrColumnNotFound, name))
			}
			r.values[name] = coerce(col.Type, v)
		}
		if err := t.insertRow(ctx, tx, r); err != nil {
			_ = tx.Rollback()
			return tableErr(t, "seed", fmt.Errorf("row %d: %w", i+1, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return tableErr(t, "seed", err)
	}
	logging.InfoContext(ctx, "table seeded", "table", t.FullName(), "rows", len(rows))
	return nil
}

// CompleteRegistration wires relations, builds computed columns and runs
// finalizers for every table of schema, in that order. Computed column
// builders that fail are retried as long as a pass makes progress.
func (c *Controller) CompleteRegistration(ctx context.Context, schema string) error {
	schema = sqlite.SchemaOrMain(schema)
	tables := c.Tables(schema)

	for _, t := range tables {
		if b, ok := t.def.(RelationBuilder); ok {
			if err := b.BuildRelations(c); err != nil {
				return tableErr(t, "build relations", err)
			}
		}
	}

	if err := c.buildComputed(ctx, tables); err != nil {
		return err
	}

	for _, t := range tables {
		if err := t.finalize(ctx); err != nil {
			return err
		}
	}
	logging.InfoContext(ctx, "registration complete", "schema", schema, "tables", len(tables))
	return nil
}

// buildComputed iterates the computed column builders to a fixed point. A
// pass makes progress when a builder succeeds or any column was added. The
// number of passes is bounded by the number of builders plus one.
func (c *Controller) buildComputed(ctx context.Context, tables []*Table) error {
	var pending []*Table
	for _, t := range tables {
		if _, ok := t.def.(ComputedColumnBuilder); ok {
			pending = append(pending, t)
		}
	}

	maxPasses := len(pending) + 1
	var lastErrs []error
	for pass := 1; len(pending) > 0; pass++ {
		if pass > maxPasses {
			return fmt.Errorf("%w: no fixed point after %d passes: %w",
				ErrInitialization, maxPasses, errors.Join(lastErrs...))
		}
		before := computedTotal(tables)
		var (
			failed []*Table
			errs   []error
		)
		for _, t := range pending {
			if err := t.def.(ComputedColumnBuilder).BuildComputedColumns(c); err != nil {
				failed = append(failed, t)
				errs = append(errs, tableErr(t, "build computed columns", err))
			}
		}
		if len(failed) == 0 {
			return nil
		}
		if len(failed) == len(pending) && computedTotal(tables) == before {
			return fmt.Errorf("%w: %w", ErrInitialization, errors.Join(errs...))
		}
		logging.DebugContext(ctx, "deferring computed columns", "pass", pass, "tables", len(failed))
		pending, lastErrs = failed, errs
	}
	return nil
}

func computedTotal(tables []*Table) int {
	n := 0
	for _, t := range tables {
		n += t.computedCount()
	}
	return n
}

func (t *Table) finalize(ctx context.Context) error {
	if f, ok := t.def.(Finalizer); ok {
		if err := f.Finalize(ctx, t.ctrl); err != nil {
			return tableErr(t, "finalize", err)
		}
	}
	return nil
}

// Reload reloads every registered table from the store, discarding pending
// changes, and runs the finalizers again.
func (c *Controller) Reload(ctx context.Context) error {
	for _, t := range c.tables {
		if t.IsDirty() {
			logging.WarnContext(ctx, "discarding unsaved changes", "table", t.FullName())
		}
		if err := t.Load(ctx, t.defaultLoadOptions()); err != nil {
			return err
		}
	}
	for _, t := range c.tables {
		if err := t.finalize(ctx); err != nil {
			return err
		}
	}
	logging.DebugContext(ctx, "tables reloaded", "tables", len(c.tables))
	return nil
}

// SaveAll saves every dirty table and returns the combined errors.
func (c *Controller) SaveAll(ctx context.Context) error {
	var errs []error
	for _, t := range c.tables {
		if err := t.Save(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown notifies every table, optionally saves them, closes the
// connection and clears the registry. The controller can be opened again.
func (c *Controller) Shutdown(ctx context.Context, save bool) error {
	if c.db == nil {
		return nil
	}
	for _, t := range c.tables {
		if n, ok := t.def.(ShutdownNotifier); ok {
			n.OnShutdown()
		}
	}

	var errs []error
	if save {
		errs = append(errs, c.SaveAll(ctx))
	}
	for _, t := range c.tables {
		t.Clear()
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	c.db = nil
	c.path = ""
	c.reset()

	err := errors.Join(errs...)
	logging.InfoContext(ctx, "controller shut down", "saved", save, "error", err)
	return err
}
