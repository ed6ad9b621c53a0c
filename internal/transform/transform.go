// Package transform holds the fixed set of cell transformations that can be
// referenced by name from a column mapping. The set is closed: unknown names
// are rejected when the mapping is saved, never while rows are being processed.
package transform

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Func transforms a single cell value. Implementations must be total over
// string input: any input yields a result, never a panic. Empty input passes
// through unchanged.
type Func func(string) string

const (
	Uppercase          = "uppercase"
	Lowercase          = "lowercase"
	TitleCase          = "title_case"
	Trim               = "trim"
	PhoneFormat        = "phone_format"
	EmailLower         = "email_lower"
	RemoveSpecialChars = "remove_special_chars"
)

var titleCaser = cases.Title(language.English)

// registry is the single dispatch table for transformation names. Built once
// at startup; lookups never mutate it.
var registry = map[string]Func{
	Uppercase: strings.ToUpper,
	Lowercase: strings.ToLower,
	TitleCase: func(s string) string {
		if s == "" {
			return s
		}
		return titleCaser.String(strings.ToLower(s))
	},
	Trim: strings.TrimSpace,
	PhoneFormat: func(s string) string {
		if s == "" {
			return s
		}
		var b strings.Builder
		for _, r := range s {
			if unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		return b.String()
	},
	EmailLower: func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	},
	RemoveSpecialChars: func(s string) string {
		if s == "" {
			return s
		}
		var b strings.Builder
		for _, r := range s {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
				b.WriteRune(r)
			}
		}
		return b.String()
	},
}

// Lookup resolves a transformation by name. An unknown name is a
// configuration error and should be surfaced at mapping-save time.
func Lookup(name string) (Func, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown transformation %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return fn, nil
}

// IsKnown reports whether name is a registered transformation.
func IsKnown(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns the registered transformation names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
