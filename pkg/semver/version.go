// Package semver validates the SCIP protocol version a client speaks.
package semver

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:version"

// SupportedRange is the range of SCIP protocol versions this client implements.
const SupportedRange = ">=2.0.0, <3.0.0"

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// IsMajorOnly checks if a version is a major-only specifier (e.g., "2").
func IsMajorOnly(version string) bool {
	return majorOnlyRegex.MatchString(version)
}

// ParseProtocolVersion parses a protocol version. Partial versions such as "2"
// or "2.1" are completed with zeros.
func ParseProtocolVersion(input string) (*masterminds.Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(input), "v")
	if raw == "" {
		return nil, fmt.Errorf("%s - empty protocol version", logPrefix)
	}
	v, err := masterminds.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid protocol version %q: %w", logPrefix, input, err)
	}
	return v, nil
}

// SatisfiesRange checks if a version string satisfies a range. A major-only
// range matches every version with that major.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := ParseProtocolVersion(version)
	if err != nil {
		return false
	}
	if IsMajorOnly(rangeStr) {
		return fmt.Sprintf("%d", sv.Major()) == rangeStr
	}
	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

// NormalizeProtocolVersion validates version against SupportedRange and returns it
// in canonical major.minor.patch form, as sent in the version header.
func NormalizeProtocolVersion(version string) (string, error) {
	sv, err := ParseProtocolVersion(version)
	if err != nil {
		return "", err
	}
	constraint, err := masterminds.NewConstraint(SupportedRange)
	if err != nil {
		return "", fmt.Errorf("%s - invalid supported range: %w", logPrefix, err)
	}
	if ok, errs := constraint.Validate(sv); !ok {
		return "", fmt.Errorf("%s - protocol version %s is not supported (%s): %v", logPrefix, sv, SupportedRange, errs)
	}
	return sv.String(), nil
}
