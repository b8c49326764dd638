package models

import "reflect"

// Change is one changed field in an audit diff.
type Change struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// Diff maps field names to their changes. Fields that did not change are absent.
type Diff map[string]Change

// DiffBuilder accumulates field comparisons into a Diff.
type DiffBuilder struct {
	diff Diff
}

// NewDiffBuilder returns an empty builder.
func NewDiffBuilder() *DiffBuilder {
	return &DiffBuilder{diff: Diff{}}
}

// Compare records field when current and previous differ. Pointer values are
// compared by what they point at.
func (b *DiffBuilder) Compare(field string, current, previous interface{}) *DiffBuilder {
	c, p := deref(current), deref(previous)
	if !reflect.DeepEqual(c, p) {
		b.diff[field] = Change{Old: p, New: c}
	}
	return b
}

// Build returns the accumulated diff.
func (b *DiffBuilder) Build() Diff {
	return b.diff
}

func deref(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return v
	}
	if rv.IsNil() {
		return nil
	}
	return rv.Elem().Interface()
}
