package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// SplitList splits a comma separated list, dropping blank items.
func SplitList(s string, lower ...bool) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = CleanString(item, lower...); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// StringInSlice reports whether `s` is in `ss`.
func StringInSlice(s string, ss []string) bool {
	for _, item := range ss {
		if item == s {
			return true
		}
	}
	return false
}
