// Package safe provides int64 arithmetic that fails instead of wrapping.
package safe

import (
	"errors"
	"math"
)

// ErrOverflow is returned when a result does not fit in an int64.
var ErrOverflow = errors.New("safe: int64 overflow")

// Add returns a+b or ErrOverflow.
func Add(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns a-b or ErrOverflow.
func Sub(a, b int64) (int64, error) {
	if (b > 0 && a < math.MinInt64+b) || (b < 0 && a > math.MaxInt64+b) {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > 0 {
		if b > 0 {
			if a > math.MaxInt64/b {
				return 0, ErrOverflow
			}
		} else if b < math.MinInt64/a {
			return 0, ErrOverflow
		}
	} else {
		if b > 0 {
			if a < math.MinInt64/b {
				return 0, ErrOverflow
			}
		} else if a < math.MaxInt64/b {
			return 0, ErrOverflow
		}
	}
	return a * b, nil
}
