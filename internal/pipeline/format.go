package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidFormat indicates an identifier format that cannot drive a run.
var ErrInvalidFormat = errors.New("invalid identifier format")

// Format describes one identifier type.
type Format struct {
	Name string `yaml:"name"`
	// Length is the exact digit count.
	Length int `yaml:"length"`
	// Prefix, when set, must lead every value; PrefixTag tags the misses.
	Prefix    string `yaml:"prefix"`
	PrefixTag string `yaml:"prefix_tag"`
	// Checksum enables the Verhoeff check on the last digit.
	Checksum bool `yaml:"checksum"`
}

var (
	// Aadhaar is the 12-digit national ID with a Verhoeff check digit.
	// Leading 0/1 is reported by analysis, not rejected here.
	Aadhaar = Format{Name: "aadhar", Length: 12, Checksum: true}

	// Phone is a 10-digit mobile number with the 91 country code in front.
	Phone = Format{Name: "phone", Length: 12, Prefix: "91", PrefixTag: "non_91_prefix"}
)

func (f Format) Validate() error {
	if f.Length <= 0 {
		return fmt.Errorf("%w: %q length %d", ErrInvalidFormat, f.Name, f.Length)
	}
	if f.Prefix != "" && f.PrefixTag == "" {
		return fmt.Errorf("%w: %q prefix %q without a tag", ErrInvalidFormat, f.Name, f.Prefix)
	}
	for _, r := range f.Prefix {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q prefix %q is not numeric", ErrInvalidFormat, f.Name, f.Prefix)
		}
	}
	return nil
}
