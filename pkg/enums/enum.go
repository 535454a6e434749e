package enums

import (
	"fmt"
	"slices"
)

// parse matches value exactly against the allowed set.
func parse[T ~string](allowed []T, value, kind string) (T, error) {
	if i := slices.Index(allowed, T(value)); i >= 0 {
		return allowed[i], nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
