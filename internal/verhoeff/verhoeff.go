// Package verhoeff implements the Verhoeff check digit scheme over the
// dihedral group D5. It is the checksum carried by the last digit of a
// 12-digit Aadhaar number.
package verhoeff

import "errors"

var (
	// ErrInvalidDigit indicates the input contained something other than 0-9.
	ErrInvalidDigit = errors.New("invalid digit")
)

// Sentinel is the value legacy reports record for a number whose checksum
// could not be computed.
const Sentinel = 99

var d = [10][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
	{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
	{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
	{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
	{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
	{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
	{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
	{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
	{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
}

var p = [8][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
	{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
	{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
	{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
	{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
	{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
	{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
}

var inv = [10]int{0, 4, 3, 2, 1, 5, 6, 7, 8, 9}

// fold walks the digits right to left; offset shifts the permutation row so
// the same loop serves both check digit computation and verification.
func fold(number string, offset int) (int, error) {
	c := 0
	for i := 0; i < len(number); i++ {
		ch := number[len(number)-1-i]
		if ch < '0' || ch > '9' {
			return Sentinel, ErrInvalidDigit
		}
		c = d[c][p[(i+offset)%8][ch-'0']]
	}
	return c, nil
}

// Compute returns the check digit that makes digits+digit a valid number.
func Compute(digits string) (int, error) {
	c, err := fold(digits, 1)
	if err != nil {
		return Sentinel, err
	}
	return inv[c], nil
}

// Checksum folds over every digit including the trailing check digit.
// A well-formed number yields 0.
func Checksum(number string) (int, error) {
	return fold(number, 0)
}

// Valid reports whether number ends in a correct check digit. Malformed input
// is simply invalid.
func Valid(number string) bool {
	c, err := Checksum(number)
	return err == nil && c == 0
}

// Generate appends the check digit to digits.
func Generate(digits string) (string, error) {
	c, err := Compute(digits)
	if err != nil {
		return "", err
	}
	return digits + string(rune('0'+c)), nil
}
