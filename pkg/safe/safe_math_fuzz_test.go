package safe

import (
	"math/big"
	"testing"
)

// fits reports whether the exact result of a big.Int op fits in int64.
func fits(v *big.Int) bool { return v.IsInt64() }

// FuzzAdd checks Add against arbitrary-precision arithmetic.
func FuzzAdd(f *testing.F) {
	f.Add(int64(0), int64(0))
	f.Add(int64(1), int64(2))
	f.Add(int64(-1), int64(1))
	f.Add(int64(9223372036854775807), int64(1))
	f.Add(int64(-9223372036854775808), int64(-1))

	f.Fuzz(func(t *testing.T, a, b int64) {
		exact := new(big.Int).Add(big.NewInt(a), big.NewInt(b))
		got, err := Add(a, b)
		if fits(exact) != (err == nil) {
			t.Fatalf("Add(%d, %d): overflow mismatch, err=%v", a, b, err)
		}
		if err == nil && got != exact.Int64() {
			t.Fatalf("Add(%d, %d) = %d, want %s", a, b, got, exact)
		}
	})
}

// FuzzSub checks Sub against arbitrary-precision arithmetic.
func FuzzSub(f *testing.F) {
	f.Add(int64(0), int64(0))
	f.Add(int64(10), int64(5))
	f.Add(int64(-1), int64(-1))
	f.Add(int64(-9223372036854775808), int64(1))

	f.Fuzz(func(t *testing.T, a, b int64) {
		exact := new(big.Int).Sub(big.NewInt(a), big.NewInt(b))
		got, err := Sub(a, b)
		if fits(exact) != (err == nil) {
			t.Fatalf("Sub(%d, %d): overflow mismatch, err=%v", a, b, err)
		}
		if err == nil && got != exact.Int64() {
			t.Fatalf("Sub(%d, %d) = %d, want %s", a, b, got, exact)
		}
	})
}

// FuzzMul checks Mul against arbitrary-precision arithmetic.
func FuzzMul(f *testing.F) {
	f.Add(int64(0), int64(0))
	f.Add(int64(2), int64(3))
	f.Add(int64(-2), int64(3))
	f.Add(int64(3037000500), int64(3037000500))
	f.Add(int64(-9223372036854775808), int64(-1))

	f.Fuzz(func(t *testing.T, a, b int64) {
		exact := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
		got, err := Mul(a, b)
		if fits(exact) != (err == nil) {
			t.Fatalf("Mul(%d, %d): overflow mismatch, err=%v", a, b, err)
		}
		if err == nil && got != exact.Int64() {
			t.Fatalf("Mul(%d, %d) = %d, want %s", a, b, got, exact)
		}
	})
}
