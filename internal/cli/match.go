// Package cli holds helpers shared by the vaultkeeper commands.
package cli

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNoMatch is returned when a title pattern selects nothing.
var ErrNoMatch = errors.New("no matching notes")

// MatchTitles resolves patterns against titles. A pattern with glob
// characters (*?[) selects every title it matches; any other pattern must
// name a title exactly. The result keeps first-match order without
// duplicates.
func MatchTitles(patterns, titles []string) ([]string, error) {
	seen := make(map[string]struct{}, len(titles))
	var out []string
	add := func(t string) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}

		if !strings.ContainsAny(p, "*?[") {
			if !contains(titles, p) {
				return nil, fmt.Errorf("%w: %q", ErrNoMatch, p)
			}
			add(p)
			continue
		}

		matched := false
		for _, t := range titles {
			if ok, _ := path.Match(p, t); ok {
				add(t)
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: pattern %q", ErrNoMatch, p)
		}
	}
	return out, nil
}

// FilterPrefix returns the values that start with prefix, ignoring case.
func FilterPrefix(values []string, prefix string) []string {
	lower := strings.ToLower(prefix)
	var out []string
	for _, v := range values {
		if strings.HasPrefix(strings.ToLower(v), lower) {
			out = append(out, v)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
