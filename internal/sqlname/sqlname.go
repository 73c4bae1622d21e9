// Package sqlname validates table names that are interpolated into SQL statements.
package sqlname

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRequired is returned when the name is empty.
	ErrRequired = errors.New("table name is required")
	// ErrInvalid is returned when the name has disallowed characters.
	ErrInvalid = errors.New("invalid table name")
)

// Sanitize accepts "table" or "schema.table" made of ASCII letters, digits and underscores.
func Sanitize(name string) (string, error) {
	if name == "" {
		return "", ErrRequired
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return "", fmt.Errorf("%w: %s", ErrInvalid, name)
		}
		for _, r := range part {
			if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				continue
			}

			return "", fmt.Errorf("%w: %s", ErrInvalid, name)
		}
	}

	return name, nil
}

// Placeholders returns count comma separated markers produced by mark, which receives
// the 1-based position.
func Placeholders(count int, mark func(pos int) string) string {
	if count <= 0 {
		return ""
	}

	var b strings.Builder
	for i := 1; i <= count; i++ {
		if i > 1 {
			b.WriteByte(',')
		}
		b.WriteString(mark(i))
	}

	return b.String()
}

// Question is the MySQL placeholder marker.
func Question(int) string { return "?" }

// Dollar is the PostgreSQL placeholder marker.
func Dollar(pos int) string { return fmt.Sprintf("$%d", pos) }
