package snapshot

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// BaselineVersion is returned when a stored version cannot be parsed.
const BaselineVersion = "0.1.0"

type BumpKind string

const (
	BumpNone  BumpKind = ""
	BumpMajor BumpKind = "major"
	BumpMinor BumpKind = "minor"
	BumpPatch BumpKind = "patch"
)

func ParseBumpKind(s string) (BumpKind, error) {
	switch BumpKind(strings.ToLower(strings.TrimSpace(s))) {
	case BumpNone, "none":
		return BumpNone, nil
	case BumpMajor:
		return BumpMajor, nil
	case BumpMinor:
		return BumpMinor, nil
	case BumpPatch:
		return BumpPatch, nil
	default:
		return BumpNone, fmt.Errorf("unknown version bump %q (want major|minor|patch)", s)
	}
}

// BumpVersion increments one component of an X.Y.Z version and zeroes the lower ones.
func BumpVersion(current string, kind BumpKind) string {
	return BumpVersionFrom(current, kind, BaselineVersion)
}

// BumpVersionFrom is BumpVersion with a caller-chosen baseline for unparseable input.
// BumpNone returns the parsed version unchanged.
func BumpVersionFrom(current string, kind BumpKind, baseline string) string {
	parsed, err := semver.StrictNewVersion(strings.TrimSpace(current))
	if err != nil {
		return baseline
	}
	v := semver.New(parsed.Major(), parsed.Minor(), parsed.Patch(), "", "")

	var next semver.Version
	switch kind {
	case BumpMajor:
		next = v.IncMajor()
	case BumpMinor:
		next = v.IncMinor()
	case BumpPatch:
		next = v.IncPatch()
	default:
		next = *v
	}
	return next.String()
}
