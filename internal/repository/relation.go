package repository

import (
	"fmt"
)

// Relation links a parent column to a child column. Relation-bound computed
// columns on the child table read parent values through it.
type Relation struct {
	Name         string
	Parent       *Table
	ParentColumn string
	Child        *Table
	ChildColumn  string
}

// ParentRow returns the first live parent row whose key equals the child's
// foreign key, or nil when the key is NULL or unmatched.
func (rel *Relation) ParentRow(child *Row) *Row {
	key := child.Get(rel.ChildColumn)
	if key == nil {
		return nil
	}
	return rel.Parent.Find(rel.ParentColumn, key)
}

// ChildRows returns the live child rows referencing parent.
func (rel *Relation) ChildRows(parent *Row) []*Row {
	key := parent.Get(rel.ParentColumn)
	if key == nil {
		return nil
	}
	var out []*Row
	for _, r := range rel.Child.rows {
		if r.state != RowDeleted && valuesEqual(r.Get(rel.ChildColumn), key) {
			out = append(out, r)
		}
	}
	return out
}

func (rel *Relation) touches(schema string) bool {
	return rel.Parent.Schema() == schema || rel.Child.Schema() == schema
}

// AddRelation registers a named relation. Registering the same link twice
// is a no-op; reusing a name for a different link is an error.
func (c *Controller) AddRelation(name string, parent *Table, parentColumn string, child *Table, childColumn string) (*Relation, error) {
	if parent.Column(parentColumn) == nil {
		return nil, tableErr(parent, "relation "+name, fmt.Errorf("%w: %s", ErrColumnNotFound, parentColumn))
	}
	if child.Column(childColumn) == nil {
		return nil, tableErr(child, "relation "+name, fmt.Errorf("%w: %s", ErrColumnNotFound, childColumn))
	}
	rel := &Relation{
		Name:         name,
		Parent:       parent,
		ParentColumn: parentColumn,
		Child:        child,
		ChildColumn:  childColumn,
	}
	if prev, ok := c.relations[name]; ok {
		if *prev == *rel {
			return prev, nil
		}
		return nil, fmt.Errorf("repository: relation %q already links %s.%s to %s.%s",
			name, prev.Parent.FullName(), prev.ParentColumn, prev.Child.FullName(), prev.ChildColumn)
	}
	c.relations[name] = rel
	return rel, nil
}

// Relation returns the relation registered under name.
func (c *Controller) Relation(name string) (*Relation, error) {
	rel, ok := c.relations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRelationNotFound, name)
	}
	return rel, nil
}
