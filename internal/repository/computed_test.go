package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	customerDDL = `CREATE TABLE "{schema}"."{table}" (id INTEGER PRIMARY KEY, name TEXT)`
	orderDDL    = `CREATE TABLE "{schema}"."{table}" (id INTEGER PRIMARY KEY, customer_id INTEGER, qty INTEGER, price INTEGER)`
)

func TestCallbackColumnFiresOncePerBatch(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	orders := newHookTable("orders", orderDDL)
	orders.Seeds = []map[string]any{{"customer_id": 1, "qty": 2, "price": 5}}
	var calls int
	orders.computed = func(c *Controller, tbl *Table) error {
		_, err := tbl.AddCallbackColumn("line_total", TypeInteger, tbl, []string{"qty", "price"},
			func(cc *ComputedColumn, ev RowChangeEvent) {
				calls++
				w := &RowWrapper{row: ev.Row}
				_, _ = ev.Row.Set(cc.Name(), w.Int64("qty")*w.Int64("price"))
			})
		return err
	}
	tbl := mountTable(t, c, orders)
	require.NoError(t, c.CompleteRegistration(ctx, ""))

	r := tbl.Rows()[0]
	r.BeginEdit()
	mustSet(t, r, "qty", 3)
	mustSet(t, r, "price", 7)
	assert.Equal(t, 0, calls, "callback must wait for the end of the batch")
	r.EndEdit()

	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(21), r.Get("line_total"))

	mustSet(t, r, "qty", 4)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(28), r.Get("line_total"))

	mustSet(t, r, "customer_id", 9)
	assert.Equal(t, 2, calls, "non-dependency change must not recompute")

	require.NoError(t, tbl.Save(ctx))
	changed, err := r.Set("line_total", 100)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, RowUnchanged, r.State(), "computed writes never dirty the row")
	assert.Equal(t, 2, calls)
}

func TestCallbackColumnAcrossTables(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	customers := newHookTable("customer", customerDDL)
	customers.Seeds = []map[string]any{{"name": "Acme"}}
	orders := newHookTable("orders", orderDDL)

	customers.computed = func(c *Controller, tbl *Table) error {
		ordersTbl, err := c.Table("", "orders")
		if err != nil {
			return err
		}
		_, err = tbl.AddCallbackColumn("order_count", TypeInteger, ordersTbl, []string{"customer_id"},
			func(cc *ComputedColumn, ev RowChangeEvent) {
				for _, cust := range cc.Owner().Rows() {
					n := 0
					for _, o := range cc.Dependent().Rows() {
						if o.State() != RowDeleted && valuesEqual(o.Get("customer_id"), cust.Get("id")) {
							n++
						}
					}
					_, _ = cust.Set(cc.Name(), n)
				}
			})
		return err
	}
	custTbl := mountTable(t, c, customers)
	ordTbl := mountTable(t, c, orders)
	require.NoError(t, c.CompleteRegistration(ctx, ""))

	cust := custTbl.Rows()[0]
	o := addRow(t, ordTbl, map[string]any{"customer_id": cust.Get("id"), "qty": 1, "price": 1})
	assert.Equal(t, int64(1), cust.Get("order_count"))

	require.NoError(t, o.Delete())
	assert.Equal(t, int64(0), cust.Get("order_count"))
	assert.False(t, custTbl.IsDirty())
}

func TestRelationColumn(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	customers := newHookTable("customer", customerDDL)
	customers.Seeds = []map[string]any{{"name": "Acme"}, {"name": "Globex"}}
	orders := newHookTable("orders", orderDDL)
	orders.Seeds = []map[string]any{{"customer_id": 1, "qty": 1, "price": 1}}
	orders.relations = func(c *Controller, tbl *Table) error {
		parent, err := c.Table("", "customer")
		if err != nil {
			return err
		}
		_, err = c.AddRelation("customer_orders", parent, "id", tbl, "customer_id")
		return err
	}
	orders.computed = func(c *Controller, tbl *Table) error {
		_, err := tbl.AddRelationColumn("customer_name", TypeText, "customer_orders", "name")
		return err
	}
	custTbl := mountTable(t, c, customers)
	ordTbl := mountTable(t, c, orders)
	require.NoError(t, c.CompleteRegistration(ctx, ""))

	o := ordTbl.Rows()[0]
	assert.Equal(t, "Acme", o.Get("customer_name"))

	mustSet(t, o, "customer_id", 2)
	assert.Equal(t, "Globex", o.Get("customer_name"))

	mustSet(t, custTbl.Find("id", 2), "name", "Initech")
	assert.Equal(t, "Initech", o.Get("customer_name"))

	_, err := o.Set("customer_name", "x")
	assert.ErrorIs(t, err, ErrComputedColumn)

	rel, err := c.Relation("customer_orders")
	require.NoError(t, err)
	assert.Len(t, rel.ChildRows(custTbl.Find("id", 2)), 1)

	// Saving never writes computed columns.
	require.NoError(t, ordTbl.Save(ctx))
	assert.Equal(t, 1, countRows(t, c, `SELECT count(*) FROM orders WHERE customer_id = 2`))
}

func TestComputedColumnIdempotent(t *testing.T) {
	c := newTestController(t)
	orders := newHookTable("orders", orderDDL)
	tbl := mountTable(t, c, orders)

	fn := func(*ComputedColumn, RowChangeEvent) {}
	first, err := tbl.AddCallbackColumn("total", TypeInteger, tbl, []string{"qty"}, fn)
	require.NoError(t, err)
	second, err := tbl.AddCallbackColumn("total", TypeInteger, tbl, []string{"qty"}, fn)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, tbl.computedCount())

	_, err = tbl.AddCallbackColumn("qty", TypeInteger, tbl, nil, fn)
	assert.ErrorIs(t, err, ErrColumnExists)

	_, err = tbl.AddRelationColumn("nope", TypeText, "missing", "name")
	assert.ErrorIs(t, err, ErrRelationNotFound)
}

func TestComputedColumnRetryResolvesLaterDependency(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	// a is processed first but depends on a column b only creates in the
	// same phase.
	a := newHookTable("a", `CREATE TABLE "{schema}"."{table}" (id INTEGER PRIMARY KEY, v INTEGER)`)
	b := newHookTable("b", `CREATE TABLE "{schema}"."{table}" (id INTEGER PRIMARY KEY, x INTEGER)`)
	b.Seeds = []map[string]any{{"x": 1}}
	a.Seeds = []map[string]any{{"v": 0}}

	var aCalls int
	a.computed = func(c *Controller, tbl *Table) error {
		bt, err := c.Table("", "b")
		if err != nil {
			return err
		}
		_, err = tbl.AddCallbackColumn("mirror", TypeInteger, bt, []string{"doubled"},
			func(cc *ComputedColumn, ev RowChangeEvent) {
				aCalls++
				for _, r := range cc.Owner().Rows() {
					_, _ = r.Set(cc.Name(), ev.Row.Get("doubled"))
				}
			})
		return err
	}
	b.computed = func(c *Controller, tbl *Table) error {
		_, err := tbl.AddCallbackColumn("doubled", TypeInteger, tbl, []string{"x"},
			func(cc *ComputedColumn, ev RowChangeEvent) {
				x, _ := asInt64OrNil(ev.Row.Get("x"))
				_, _ = ev.Row.Set(cc.Name(), x*2)
			})
		return err
	}
	aTbl := mountTable(t, c, a)
	bTbl := mountTable(t, c, b)
	require.NoError(t, c.CompleteRegistration(ctx, ""))

	assert.Equal(t, 2, a.builds)
	assert.Equal(t, 1, b.builds)
	require.NotNil(t, aTbl.Column("mirror"))

	mustSet(t, bTbl.Rows()[0], "x", 5)
	assert.Equal(t, int64(10), bTbl.Rows()[0].Get("doubled"))
	assert.Equal(t, int64(10), aTbl.Rows()[0].Get("mirror"))
	assert.Equal(t, 1, aCalls)
}

func TestComputedColumnMissingDependencyFails(t *testing.T) {
	c := newTestController(t)
	a := newHookTable("a", `CREATE TABLE "{schema}"."{table}" (id INTEGER PRIMARY KEY, v INTEGER)`)
	a.computed = func(c *Controller, tbl *Table) error {
		_, err := tbl.AddCallbackColumn("ghost", TypeInteger, tbl, []string{"never_created"},
			func(*ComputedColumn, RowChangeEvent) {})
		return err
	}
	mountTable(t, c, a)

	err := c.CompleteRegistration(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, ErrColumnNotFound)
	assert.Equal(t, 1, a.builds)
}

func TestComputedColumnPassesAreBounded(t *testing.T) {
	c := newTestController(t)
	a := newHookTable("a", `CREATE TABLE "{schema}"."{table}" (id INTEGER PRIMARY KEY)`)
	// Adds a new column on every call and never succeeds.
	a.computed = func(c *Controller, tbl *Table) error {
		if _, err := tbl.AddCallbackColumn(fmt.Sprintf("c%d", a.builds), TypeInteger, tbl, nil,
			func(*ComputedColumn, RowChangeEvent) {}); err != nil {
			return err
		}
		return errors.New("still waiting")
	}
	b := newHookTable("b", `CREATE TABLE "{schema}"."{table}" (id INTEGER PRIMARY KEY)`)
	b.computed = func(*Controller, *Table) error { return nil }
	mountTable(t, c, a)
	mountTable(t, c, b)

	err := c.CompleteRegistration(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorContains(t, err, "still waiting")
	assert.Equal(t, 3, a.builds)
	assert.Equal(t, 1, b.builds)
}
