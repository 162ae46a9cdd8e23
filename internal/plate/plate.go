// Package plate maps sample counts onto plate columns.
//
// Plates are rectangular grids of wells. A multi-channel pipette head moves
// one whole column (one well per row) in a single operation, so everything
// in this package is expressed in columns: a reaction count becomes the
// shortest contiguous run of columns that holds it, and individual samples
// are located by (column, row) within that run.
package plate

import (
	"errors"
	"fmt"
)

// DefaultWidth is the channel width of a standard multi-channel head and
// the row count of a standard 96-well plate.
const DefaultWidth = 8

// Standard96 is the geometry of an 8 × 12 microplate.
var Standard96 = Geometry{Rows: 8, Columns: 12}

var (
	// ErrCapacityExceeded is returned when a column range runs past the
	// last column of a plate.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrInvalidCount is returned for a non-positive sample count.
	ErrInvalidCount = errors.New("sample count must be positive")
	// ErrInvalidStart is returned for a non-positive start column.
	ErrInvalidStart = errors.New("start column must be positive")
)

// CapacityError describes a column range that does not fit on a plate.
type CapacityError struct {
	Plate    string
	Start    int
	Needed   int
	Capacity int
}

func (e *CapacityError) Error() string {
	last := e.Start + e.Needed - 1
	if e.Plate == "" {
		return fmt.Sprintf("capacity exceeded: columns %d..%d (%d columns) past capacity %d",
			e.Start, last, e.Needed, e.Capacity)
	}
	return fmt.Sprintf("capacity exceeded: plate %q columns %d..%d (%d columns) past capacity %d",
		e.Plate, e.Start, last, e.Needed, e.Capacity)
}

// Unwrap lets errors.Is match ErrCapacityExceeded.
func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// Geometry is the row × column shape of a plate or reservoir.
type Geometry struct {
	Rows    int
	Columns int
}

// Address identifies one column of one plate.
type Address struct {
	Plate  string `json:"plate"`
	Column int    `json:"column"`
}

// WellName returns the name of the column's top-row well ("A3"), which is
// how multi-channel heads address a column.
func (a Address) WellName() string {
	return fmt.Sprintf("A%d", a.Column)
}

// String renders the address as plate:well.
func (a Address) String() string {
	return a.Plate + ":" + a.WellName()
}

// ColumnsNeeded returns ceil(count/width).
func ColumnsNeeded(count, width int) int {
	if width <= 0 {
		width = DefaultWidth
	}
	if count <= 0 {
		return 0
	}
	return (count + width - 1) / width
}

// Columns returns the contiguous column indexes holding count samples,
// starting at start. A zero start or width takes the default (1 and 8).
// The range must end at or before capacity.
func Columns(count, start, width, capacity int) ([]int, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	if start == 0 {
		start = 1
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStart, start)
	}
	if width <= 0 {
		width = DefaultWidth
	}
	n := ColumnsNeeded(count, width)
	if start+n-1 > capacity {
		return nil, &CapacityError{Start: start, Needed: n, Capacity: capacity}
	}
	cols := make([]int, n)
	for i := range cols {
		cols[i] = start + i
	}
	return cols, nil
}

// Range returns the addresses of the columns holding count samples on the
// plate id with geometry g. The plate's row count is the channel width.
func Range(id string, g Geometry, count, start int) ([]Address, error) {
	cols, err := Columns(count, start, g.Rows, g.Columns)
	if err != nil {
		var ce *CapacityError
		if errors.As(err, &ce) {
			ce.Plate = id
		}
		return nil, err
	}
	addrs := make([]Address, len(cols))
	for i, c := range cols {
		addrs[i] = Address{Plate: id, Column: c}
	}
	return addrs, nil
}

// Locate returns the column and 0-based row of a 0-based sample index in a
// run of columns beginning at start. Samples fill a column top to bottom
// before moving to the next.
func Locate(sample, start, width int) (column, row int) {
	if width <= 0 {
		width = DefaultWidth
	}
	if start <= 0 {
		start = 1
	}
	return start + sample/width, sample % width
}

// RowName returns the letter of a 0-based row ("A" for 0).
func RowName(row int) string {
	if row < 0 || row >= 26 {
		return "?"
	}
	return string(rune('A' + row))
}
