// Package normalize canonicalizes the free-text cells that identifiers and
// names arrive in.
package normalize

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNoUID indicates a scan payload without a uid attribute.
	ErrNoUID = errors.New("no uid in scan")
)

var (
	uidRe   = regexp.MustCompile(`uid="(\d+)"`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Digits folds compatibility forms (full-width digits and the like) to
// ASCII and drops everything that is not 0-9.
//
//	"1234 5678-9012" -> "123456789012"
func Digits(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UIDFromScan extracts the identifier from the XML a 2D barcode scan
// returns.
func UIDFromScan(raw string) (string, error) {
	m := uidRe.FindStringSubmatch(raw)
	if m == nil {
		return "", ErrNoUID
	}
	return m[1], nil
}

// SiteCode turns a worker username into the site code used by the location
// table. Usernames carry one leading zero the table does not.
func SiteCode(username string) string {
	username = strings.TrimSpace(username)
	if strings.HasPrefix(username, "0") {
		return username[1:]
	}
	return username
}

// WithCountryCode prefixes a ten-digit mobile number with 91. Other
// lengths are returned as digits only.
func WithCountryCode(phone string) string {
	d := Digits(phone)
	if len(d) == 10 {
		return "91" + d
	}
	return d
}

// Name composes Unicode, trims and collapses internal whitespace.
func Name(s string) string {
	s = norm.NFC.String(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
