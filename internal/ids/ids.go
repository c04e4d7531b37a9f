// Package ids implements tak's identifier service (spec.md §4.1): canonical
// 64-bit task ids, parsing of canonical/legacy/prefix forms, and allocation
// serialized by counter.lock.
package ids

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/steveyegge/tak/internal/errs"
)

// CanonicalLen is the fixed width of a canonical hex id.
const CanonicalLen = 16

// Canonical formats a 64-bit id as 16 lowercase hex characters.
func Canonical(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

// Parse accepts canonical hex, legacy decimal, or an unambiguous form already
// resolved by the caller, and returns the underlying 64-bit integer.
func Parse(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errs.New(errs.InvalidArgument, "empty id")
	}
	if len(s) == CanonicalLen && isHex(s) {
		v, err := strconv.ParseUint(strings.ToLower(s), 16, 64)
		if err != nil {
			return 0, errs.Wrap(errs.InvalidPrefix, err, "invalid canonical id %q", s)
		}
		return v, nil
	}
	// Legacy non-negative decimal form: the same integer, different radix.
	if isDecimal(s) {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, errs.Wrap(errs.InvalidPrefix, err, "invalid legacy id %q", s)
		}
		return v, nil
	}
	return 0, errs.New(errs.InvalidPrefix, "unrecognized id form %q", s)
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Compare orders two canonical ids numerically (not lexically on the hex
// string), per spec.md §4.5.4.
func Compare(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	switch {
	case va < vb:
		return -1
	case va > vb:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts before b under Compare.
func Less(a, b string) bool { return Compare(a, b) < 0 }

// NextID returns max(existing)+1 over the given canonical ids. An empty set
// allocates id 1 (id 0 is reserved so callers can use "" as a stand-in for
// "no id" without colliding with a real one).
func NextID(existing []string) uint64 {
	var max uint64
	for _, id := range existing {
		if v, err := Parse(id); err == nil && v > max {
			max = v
		}
	}
	return max + 1
}

// ResolvePrefix resolves a case-insensitive prefix against a set of resident
// canonical ids, per spec.md §4.1. Exact matches (canonical or legacy
// decimal) win outright; otherwise a unique prefix match wins; ambiguity
// returns AmbiguousPrefix with the candidate list.
func ResolvePrefix(prefix string, resident []string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", errs.New(errs.InvalidArgument, "empty prefix")
	}

	residentSet := make(map[string]bool, len(resident))
	for _, id := range resident {
		residentSet[strings.ToLower(id)] = true
	}

	if residentSet[prefix] {
		return prefix, nil
	}
	if v, err := Parse(prefix); err == nil {
		canon := Canonical(v)
		if residentSet[canon] {
			return canon, nil
		}
	}

	var matches []string
	for _, id := range resident {
		lid := strings.ToLower(id)
		if strings.HasPrefix(lid, prefix) {
			matches = append(matches, lid)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", errs.New(errs.NotFound, "no task matches prefix %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", errs.New(errs.AmbiguousPrefix, "prefix %q matches %d tasks: %s",
			prefix, len(matches), strings.Join(matches, ", "))
	}
}
