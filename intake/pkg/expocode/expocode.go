// Package expocode normalizes cruise dataset identifiers ("expocodes").
//
// An expocode is a ship or platform code followed by the cruise start date as YYYYMMDD and an
// optional short suffix, for example 33RO20050301 or QUIMA20050301.
package expocode

import (
	"strings"
	"time"

	"github.com/oceanco2/intake/intake/pkg/dserror"
)

const (
	MinLength = 12
	MaxLength = 14
)

// Expocode is a normalized dataset identifier.
type Expocode struct {
	Code     string    `json:"code"`
	ShipCode string    `json:"ship_code"`
	Date     time.Time `json:"date"`
}

func (e Expocode) String() string {
	return e.Code
}

// Normalize trims and upper-cases raw, then checks its length, characters and embedded date.
func Normalize(raw string) (Expocode, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if n := len(code); n < MinLength || n > MaxLength {
		return Expocode{}, invalid(raw, "must be %d to %d characters long", MinLength, MaxLength)
	}
	for _, r := range code {
		if !isCodeChar(r) {
			return Expocode{}, invalid(raw, "contains invalid character %q", r)
		}
	}

	shipLen := 4
	if !isDigit(code[4]) {
		shipLen = 5
	}
	if len(code) < shipLen+8 {
		return Expocode{}, invalid(raw, "too short for a %d character ship code and date", shipLen)
	}
	datePart := code[shipLen : shipLen+8]
	for i := 0; i < len(datePart); i++ {
		if !isDigit(datePart[i]) {
			return Expocode{}, invalid(raw, "date %q must be eight digits", datePart)
		}
	}
	date, err := time.Parse("20060102", datePart)
	if err != nil {
		return Expocode{}, invalid(raw, "date %q is not a valid calendar date", datePart)
	}

	return Expocode{Code: code, ShipCode: code[:shipLen], Date: date}, nil
}

// Equal reports whether two raw identifiers normalize to the same expocode.
// Identifiers that fail to normalize are never equal.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na.Code == nb.Code
}

func isCodeChar(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func invalid(raw, format string, args ...any) *dserror.Error {
	e := dserror.New(dserror.KindInvalidIdentifier, format, args...)
	e.Text = raw
	return e
}
