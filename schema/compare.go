package schema

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Difference is one way a live table departs from its declaration.
type Difference struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// Difference kinds.
const (
	DiffColumnAdded   = "column_added"
	DiffColumnRemoved = "column_removed"
	DiffType          = "type"
	DiffNotNull       = "not_null"
	DiffDefault       = "default"
	DiffPrimaryKey    = "primary_key"
	DiffUnique        = "unique"
	DiffCollate       = "collate"
	DiffForeignKey    = "foreign_key"
	DiffIndex         = "index"
)

func (d Difference) String() string {
	if d.Detail == "" {
		return d.Kind + " " + d.Name
	}
	return d.Kind + " " + d.Name + ": " + d.Detail
}

// Matches reports whether the live table is equivalent to the declaration.
func Matches(declared, live Schema) bool {
	return len(Diff(declared, live)) == 0
}

// Diff lists every difference between the declared and the live schema.
// Types are compared by storage type and NOT NULL by its effective value,
// so a primary key counts as not null on both sides.
func Diff(declared, live Schema) []Difference {
	var diffs []Difference

	declPK := declared.PrimaryKeyColumns()
	livePK := live.PrimaryKeyColumns()

	for _, dc := range declared.Columns {
		lc, ok := live.Column(dc.Name)
		if !ok {
			diffs = append(diffs, Difference{Kind: DiffColumnAdded, Name: dc.Name})
			continue
		}

		dt, _ := dc.Type.Storage()
		lt, _ := lc.Type.Storage()
		if dt != lt {
			diffs = append(diffs, Difference{DiffType, dc.Name, fmt.Sprintf("%s, want %s", lt, dt)})
		}

		dNotNull := dc.NotNull || slices.Contains(declPK, dc.Name)
		lNotNull := lc.NotNull || slices.Contains(livePK, lc.Name)
		if dNotNull != lNotNull {
			diffs = append(diffs, Difference{DiffNotNull, dc.Name, fmt.Sprintf("%t, want %t", lNotNull, dNotNull)})
		}

		if dk, lk := defaultKey(dc.Default), defaultKey(lc.Default); dk != lk {
			diffs = append(diffs, Difference{DiffDefault, dc.Name, fmt.Sprintf("%s, want %s", orNone(lk), orNone(dk))})
		}

		dUnique := dc.Unique && !dc.PrimaryKey
		lUnique := lc.Unique && !lc.PrimaryKey
		if dUnique != lUnique {
			diffs = append(diffs, Difference{DiffUnique, dc.Name, fmt.Sprintf("%t, want %t", lUnique, dUnique)})
		}

		if dk, lk := collationKey(dc.Collate), collationKey(lc.Collate); dk != lk {
			diffs = append(diffs, Difference{DiffCollate, dc.Name, fmt.Sprintf("%s, want %s", lk, dk)})
		}
	}

	for _, lc := range live.Columns {
		if _, ok := declared.Column(lc.Name); !ok {
			diffs = append(diffs, Difference{Kind: DiffColumnRemoved, Name: lc.Name})
		}
	}

	if !slices.Equal(declPK, livePK) {
		diffs = append(diffs, Difference{DiffPrimaryKey, live.Name,
			fmt.Sprintf("(%s), want (%s)", strings.Join(livePK, ", "), strings.Join(declPK, ", "))})
	}

	diffs = append(diffs, diffForeignKeys(declared, live)...)
	diffs = append(diffs, diffIndices(declared, live)...)

	return diffs
}

func diffForeignKeys(declared, live Schema) []Difference {
	if len(declared.ForeignKeys) != len(live.ForeignKeys) {
		return []Difference{{DiffForeignKey, live.Name,
			fmt.Sprintf("%d foreign keys, want %d", len(live.ForeignKeys), len(declared.ForeignKeys))}}
	}

	var diffs []Difference
	for _, lfk := range live.ForeignKeys {
		from := strings.Join(lfk.From, ", ")
		match := false
		for _, dfk := range declared.ForeignKeys {
			if strings.Join(dfk.From, ", ") != from {
				continue
			}
			dt, dcols, _ := dfk.Target()
			lt, lcols, _ := lfk.Target()
			match = dt == lt && slices.Equal(dcols, lcols)
			break
		}
		if !match {
			diffs = append(diffs, Difference{DiffForeignKey, from, "no matching declared foreign key"})
		}
	}
	return diffs
}

func diffIndices(declared, live Schema) []Difference {
	want := declared.effectiveIndices()
	have := live.Indices

	var diffs []Difference
	for _, name := range sortedKeys(want) {
		w := want[name]
		h, ok := have[name]
		switch {
		case !ok:
			diffs = append(diffs, Difference{DiffIndex, name, "missing"})
		case !slices.Equal(w.Columns, h.Columns) || w.Unique != h.Unique:
			diffs = append(diffs, Difference{DiffIndex, name, "definition changed"})
		}
	}
	for _, name := range sortedKeys(have) {
		if _, ok := want[name]; !ok {
			diffs = append(diffs, Difference{DiffIndex, name, "not declared"})
		}
	}
	return diffs
}

// defaultKey normalizes a default for comparison: strings as their quoted
// literal, numbers by numeric value, nil as "".
func defaultKey(val any) string {
	s, err := formatDefault(val)
	if err != nil {
		return fmt.Sprint(val)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return s
}

// collationKey treats a missing collation as SQLite's default, BINARY.
func collationKey(name string) string {
	if name == "" {
		return "BINARY"
	}
	return strings.ToUpper(name)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
