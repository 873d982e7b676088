package sku

import "strings"

// Upper returns s with all letters mapped to upper case.
func Upper(s string) string {
	return strings.ToUpper(s)
}

// Truncate returns the first n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Code returns the upper-cased first n runes of s.
func Code(s string, n int) string {
	return Upper(Truncate(s, n))
}

// Join concatenates the non-empty parts with sep.
func Join(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
