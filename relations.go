// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrmeta

import "sort"

// rangeOwner describes one of the five range-owning parent/child table
// pairs of ECMA-335 §II.22: a parent row's "first" column and the next
// parent row's "first" column (or the child table's row count, for the
// last parent) delimit a contiguous run of child rows it owns.
type rangeOwner struct {
	parent     TableID
	child      TableID
	firstCol   string
}

var rangeOwners = []rangeOwner{
	{TypeDef, Field, "FieldList"},
	{TypeDef, MethodDef, "MethodList"},
	{MethodDef, Param, "ParamList"},
	{EventMap, Event, "EventList"},
	{PropertyMap, Property, "PropertyList"},
}

// ChildRange returns the [first, last] 1-based row range of child owned
// by the parent-table row parentRow, per the range-owning convention:
// the parent's "first" column names the first child row, and the next
// parent row's "first" column (or one past the child table's row count,
// if parentRow is the last parent row) is one past the last child row.
// The range is empty (first > last) if the parent owns no children.
func (db *Database) ChildRange(parent TableID, parentRow uint32, child TableID) (first, last uint32, err error) {
	col := ""
	for _, ro := range rangeOwners {
		if ro.parent == parent && ro.child == child {
			col = ro.firstCol
			break
		}
	}
	if col == "" {
		return 0, 0, ErrOutsideBoundary
	}

	start, err := db.SimpleIndex(parent, parentRow, col)
	if err != nil {
		return 0, 0, err
	}

	rowCount := db.RowCount(parent)
	var end uint32
	if parentRow >= rowCount {
		end = db.RowCount(child) + 1
	} else {
		next, err := db.SimpleIndex(parent, parentRow+1, col)
		if err != nil {
			return 0, 0, err
		}
		end = next.Row
	}

	first = start.Row
	last = end - 1
	return first, last, nil
}

// OwnerOf is the inverse of ChildRange: given a row of a range-owned
// child table, it finds the unique parent row that owns it, per
// ECMA-335 §II.22's range-owning convention (the same [first, next)
// intervals ChildRange walks forward). It binary searches for the
// parent row whose own "first" column is the largest one not exceeding
// childRow, treating the table's last parent row as owning every
// remaining child row through the child table's end; a parent row
// whose range is empty (its "first" column equals the next row's) can
// never be returned, since by construction it owns nothing.
func (db *Database) OwnerOf(child TableID, childRow uint32, parent TableID) (uint32, error) {
	col := ""
	for _, ro := range rangeOwners {
		if ro.parent == parent && ro.child == child {
			col = ro.firstCol
			break
		}
	}
	if col == "" {
		return 0, ErrOutsideBoundary
	}

	n := db.RowCount(parent)
	childCount := db.RowCount(child)
	if n == 0 || childRow == 0 || childRow > childCount {
		return 0, ErrOutsideBoundary
	}

	// firstOf(r) is the first child row parent row r owns, for
	// 1 <= r <= n; firstOf(n+1) is one past the child table's end, the
	// upper sentinel ChildRange uses for the last parent row.
	firstOf := func(r uint32) (uint32, error) {
		if r > n {
			return childCount + 1, nil
		}
		v, err := db.SimpleIndex(parent, r, col)
		if err != nil {
			return 0, err
		}
		return v.Row, nil
	}

	var searchErr error
	p := sort.Search(int(n), func(i int) bool {
		next, err := firstOf(uint32(i) + 2)
		if err != nil {
			searchErr = err
			return true
		}
		return next > childRow
	})
	if searchErr != nil {
		return 0, searchErr
	}
	if p >= int(n) {
		return 0, ErrOutsideBoundary
	}

	ownerRow := uint32(p) + 1
	start, err := firstOf(ownerRow)
	if err != nil {
		return 0, err
	}
	if childRow < start {
		return 0, ErrOutsideBoundary
	}
	return ownerRow, nil
}

// FindEqualRange performs a binary search for the contiguous run of rows
// in table whose column named keyCol equals key, requiring the table's
// Sorted bit to be set (ECMA-335 guarantees rows are grouped and ordered
// by that key when it is). Returns an empty range (first > last) if no
// row matches.
// An unsorted table is a recoverable anomaly: in strict mode it is a
// hard error, otherwise it is logged and treated as a clean no-match
// rather than risking a binary search over unordered data.
func (db *Database) FindEqualRange(table TableID, keyCol string, key uint32) (first, last uint32, err error) {
	if !db.IsSorted(table) {
		if db.strict {
			return 0, 0, ErrTableNotSorted
		}
		if db.logger != nil {
			db.logger.Warnf("FindEqualRange: table %v is not marked Sorted, reporting no match", table)
		}
		return 1, 0, nil
	}
	n := int(db.RowCount(table))
	if n == 0 {
		return 1, 0, nil
	}

	keyOf := func(row uint32) (uint32, error) {
		v, err := db.rawKeyColumn(table, row, keyCol)
		return v, err
	}

	lo := sort.Search(n, func(i int) bool {
		v, err := keyOf(uint32(i) + 1)
		if err != nil {
			return true
		}
		return v >= key
	})
	if lo >= n {
		return 1, 0, nil
	}
	v, err := keyOf(uint32(lo) + 1)
	if err != nil {
		return 0, 0, err
	}
	if v != key {
		return 1, 0, nil
	}

	hi := sort.Search(n, func(i int) bool {
		v, err := keyOf(uint32(i) + 1)
		if err != nil {
			return true
		}
		return v > key
	})

	return uint32(lo) + 1, uint32(hi), nil
}

// rawKeyColumn reads a fixed-width or simple-index column's raw value,
// the common shape every sorted foreign key in the schema takes.
func (db *Database) rawKeyColumn(table TableID, row uint32, name string) (uint32, error) {
	i := columnIndex(table, name)
	if i < 0 {
		return 0, ErrOutsideBoundary
	}
	return db.rawColumn(table, row, i)
}
