package plate

import "fmt"

// Segment is one plate's share of a multi-plate span: columns First..Last
// (inclusive) of plate ID, filled in order. Last = 0 means the plate's last
// column.
type Segment struct {
	Plate    string
	Geometry Geometry
	First    int
	Last     int
}

func (s Segment) bounds() (first, last int) {
	first, last = s.First, s.Last
	if first <= 0 {
		first = 1
	}
	if last <= 0 || last > s.Geometry.Columns {
		last = s.Geometry.Columns
	}
	return first, last
}

// Span lays count samples across several plates: the first segment is
// filled column by column, then the next, and so on. This is how a run of
// 21 culture columns is spread as 12 on one deep-well plate and 9 on a
// second. All segments must share one row count.
func Span(count int, segments []Segment) ([]Address, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("span needs at least one plate")
	}
	width := segments[0].Geometry.Rows
	need := ColumnsNeeded(count, width)

	var out []Address
	total := 0
	for _, seg := range segments {
		if seg.Geometry.Rows != width {
			return nil, fmt.Errorf("plate %q has %d rows, span uses %d", seg.Plate, seg.Geometry.Rows, width)
		}
		first, last := seg.bounds()
		if first > last {
			return nil, fmt.Errorf("plate %q: empty column range %d..%d", seg.Plate, first, last)
		}
		total += last - first + 1
		for c := first; c <= last && len(out) < need; c++ {
			out = append(out, Address{Plate: seg.Plate, Column: c})
		}
	}
	if len(out) < need {
		return nil, &CapacityError{
			Plate:    segments[0].Plate,
			Start:    1,
			Needed:   need,
			Capacity: total,
		}
	}
	return out, nil
}
