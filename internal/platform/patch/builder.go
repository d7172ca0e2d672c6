// Package patch builds parameterized partial UPDATE statements from typed
// field specifications. Identifiers are validated, never interpolated from
// user input, and every value travels as a bind parameter.
package patch

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// ErrNoOp is returned by Build when no column survived the inclusion rules.
var ErrNoOp = errors.New("patch: nothing to update")

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Blank decides what happens to a string that is empty after trimming.
type Blank int

const (
	// BlankSkip leaves the column untouched.
	BlankSkip Blank = iota
	// BlankNull stores NULL.
	BlankNull
	// BlankKeep stores the empty string.
	BlankKeep
)

// Rule is the inclusion policy of one field. Absent fields are always skipped.
type Rule struct {
	Blank Blank
	// NullSkip ignores an explicit JSON null instead of storing NULL.
	NullSkip bool
}

var (
	// Required columns can be replaced but never cleared.
	Required = Rule{Blank: BlankSkip, NullSkip: true}
	// Optional columns ignore blanks and are cleared by an explicit null.
	Optional = Rule{Blank: BlankSkip}
	// Clearable columns are cleared by a blank string or an explicit null.
	Clearable = Rule{Blank: BlankNull}
)

// Assignment is one "column = $n" pair.
type Assignment struct {
	Column string
	Value  any
}

// Exclusion records a submitted column that a guard kept out of the update.
type Exclusion struct {
	Column string
	Reason string
}

// Update accumulates assignments for a single row of one table.
type Update struct {
	table    string
	sets     []Assignment
	excluded []Exclusion
}

func New(table string) *Update {
	return &Update{table: table}
}

// Set includes column unconditionally, replacing an earlier assignment.
func (u *Update) Set(column string, value any) *Update {
	for i := range u.sets {
		if u.sets[i].Column == column {
			u.sets[i].Value = value
			return u
		}
	}
	u.sets = append(u.sets, Assignment{Column: column, Value: value})
	return u
}

// Exclude drops column from the update and records why.
func (u *Update) Exclude(column, reason string) *Update {
	u.remove(column)
	u.excluded = append(u.excluded, Exclusion{Column: column, Reason: reason})
	return u
}

func (u *Update) remove(column string) {
	out := u.sets[:0]
	for _, a := range u.sets {
		if a.Column != column {
			out = append(out, a)
		}
	}
	u.sets = out
}

// Excluded returns the columns kept out by Exclude.
func (u *Update) Excluded() []Exclusion {
	return append([]Exclusion(nil), u.excluded...)
}

// Columns lists the included column names.
func (u *Update) Columns() []string {
	cols := make([]string, len(u.sets))
	for i, a := range u.sets {
		cols[i] = a.Column
	}
	return cols
}

// Value returns the pending value of column.
func (u *Update) Value(column string) (any, bool) {
	for _, a := range u.sets {
		if a.Column == column {
			return a.Value, true
		}
	}
	return nil, false
}

func (u *Update) Empty() bool {
	return len(u.sets) == 0
}

// DropUnchanged removes assignments whose value equals current[column].
// Pointers are dereferenced before comparing, so *string("a") equals "a".
func (u *Update) DropUnchanged(current map[string]any) *Update {
	out := u.sets[:0]
	for _, a := range u.sets {
		if cur, ok := current[a.Column]; ok && Equal(cur, a.Value) {
			continue
		}
		out = append(out, a)
	}
	u.sets = out
	return u
}

// String applies rule to a text field. Values are trimmed.
func String(u *Update, column string, f Field[string], rule Rule) {
	if !f.Set {
		return
	}
	if f.Null {
		if !rule.NullSkip {
			u.Set(column, nil)
		}
		return
	}
	v := strings.TrimSpace(f.Value)
	if v == "" {
		switch rule.Blank {
		case BlankSkip:
			return
		case BlankNull:
			u.Set(column, nil)
			return
		}
	}
	u.Set(column, v)
}

// Any applies the null half of rule to a non-text field.
func Any[T any](u *Update, column string, f Field[T], rule Rule) {
	if !f.Set {
		return
	}
	if f.Null {
		if !rule.NullSkip {
			u.Set(column, nil)
		}
		return
	}
	u.Set(column, f.Value)
}

// Build renders "UPDATE table SET ..., updated_at = NOW() WHERE key = $n
// RETURNING ...". returning is a comma separated column list.
func (u *Update) Build(keyColumn string, key any, returning string) (string, []any, error) {
	if u.Empty() {
		return "", nil, ErrNoOp
	}
	if err := checkIdent(u.table); err != nil {
		return "", nil, err
	}
	if err := checkIdent(keyColumn); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	args := make([]any, 0, len(u.sets)+1)

	sb.WriteString("UPDATE ")
	sb.WriteString(u.table)
	sb.WriteString(" SET ")
	for i, a := range u.sets {
		if err := checkIdent(a.Column); err != nil {
			return "", nil, err
		}
		if a.Column == "updated_at" {
			return "", nil, fmt.Errorf("patch: updated_at is maintained by the builder")
		}
		args = append(args, a.Value)
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s = $%d", a.Column, i+1)
	}
	sb.WriteString(", updated_at = NOW()")

	args = append(args, key)
	fmt.Fprintf(&sb, " WHERE %s = $%d", keyColumn, len(args))

	if returning != "" {
		cols, err := checkList(returning)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" RETURNING ")
		sb.WriteString(strings.Join(cols, ", "))
	}

	return sb.String(), args, nil
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("patch: invalid identifier %q", name)
	}
	return nil
}

func checkList(list string) ([]string, error) {
	parts := strings.Split(list, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if err := checkIdent(p); err != nil {
			return nil, err
		}
		cols = append(cols, p)
	}
	return cols, nil
}

// Equal compares two column values after dereferencing pointers. Nil
// pointers equal nil.
func Equal(a, b any) bool {
	return reflect.DeepEqual(deref(a), deref(b))
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}
