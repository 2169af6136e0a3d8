package homie

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the wire layout of datetime payloads.
const DateTimeLayout = "2006-01-02T15:04:05.000Z"

var (
	integerPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)

	// Plain decimals without leading zeros, or scientific notation with a single
	// digit before the point. ".5", "5." and "007" are rejected.
	floatPattern = regexp.MustCompile(`^-?((0|[1-9][0-9]*)(\.[0-9]+)?|[0-9](\.[0-9]+)?[eE][+-]?[0-9]+)$`)

	precisionPattern = regexp.MustCompile(`^F([0-9]{1,2})$`)
)

// IsInteger reports whether s matches the integer payload grammar.
func IsInteger(s string) bool {
	return integerPattern.MatchString(s)
}

// IsFloat reports whether s matches the float payload grammar.
func IsFloat(s string) bool {
	return floatPattern.MatchString(s)
}

// ParseFloat parses a float payload. Only '.' is accepted as decimal separator.
func ParseFloat(s string) (float64, error) {
	if !IsFloat(s) {
		return 0, fmt.Errorf("%w: %q is not a float", ErrInvalidValue, s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is out of float range", ErrInvalidValue, s)
	}
	return v, nil
}

// FormatFloat renders v with a fixed number of decimal places.
func FormatFloat(v float64, decimals int) string {
	if decimals < 0 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// PrecisionFormat is the $format of a float with the given decimal places.
func PrecisionFormat(decimals int) string {
	return "F" + strconv.Itoa(decimals)
}

// Precision extracts the decimal places from a float $format such as "F2".
// It returns -1 when the format carries no precision.
func Precision(format string) int {
	m := precisionPattern.FindStringSubmatch(format)
	if m == nil {
		return -1
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// ParseBool accepts only the literal lowercase payloads.
func ParseBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, s)
}

func FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ParseDateTime parses a yyyy-MM-ddTHH:mm:ss.fffZ payload.
func ParseDateTime(s string) (time.Time, error) {
	t, err := time.Parse(DateTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a datetime", ErrInvalidValue, s)
	}
	return t, nil
}

func FormatDateTime(t time.Time) string {
	return t.UTC().Format(DateTimeLayout)
}

// EnumOptions splits an enum $format into its options.
func EnumOptions(format string) []string {
	if format == "" {
		return nil
	}
	parts := strings.Split(format, ",")
	options := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			options = append(options, p)
		}
	}
	return options
}

// splitList splits a comma list attribute such as $nodes or $properties.
func splitList(s string) []string {
	return EnumOptions(s)
}
