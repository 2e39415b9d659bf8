// Package sync holds cross-platform helpers shared by the curseforge and
// modrinth ProjectSync implementations.
package sync

import "time"

// SameSecond reports whether a and b are equal at second-level
// truncation: two updatedAt values count as equal iff their
// integer-second epoch values are equal, tolerating sub-second jitter
// upstream.
func SameSecond(a, b time.Time) bool {
	return a.Unix() == b.Unix()
}

// StringSliceEqual reports whether two ordered string sequences are
// identical, used to compare MR's versionIds sequence (order-sensitive).
func StringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StringSetEqual reports whether two string slices contain the same
// elements regardless of order, used to compare MR's gameVersions set.
func StringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, s := range a {
		set[s]++
	}
	for _, s := range b {
		set[s]--
	}
	for _, count := range set {
		if count != 0 {
			return false
		}
	}
	return true
}
