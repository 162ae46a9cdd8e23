package plate

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseWell splits a well name such as "A12" or "h3" into a 0-based row
// and a 1-based column.
func ParseWell(name string) (row, column int, err error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return 0, 0, fmt.Errorf("invalid well name %q", name)
	}
	letter := strings.ToUpper(name[:1])[0]
	if letter < 'A' || letter > 'Z' {
		return 0, 0, fmt.Errorf("invalid well name %q: row must be a letter", name)
	}
	column, err = strconv.Atoi(name[1:])
	if err != nil || column <= 0 {
		return 0, 0, fmt.Errorf("invalid well name %q: column must be a positive number", name)
	}
	return int(letter - 'A'), column, nil
}
