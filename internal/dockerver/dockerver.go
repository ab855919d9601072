// Package dockerver extracts the Docker engine version from a client
// User-Agent so old, broken clients can be turned away.
package dockerver

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var uaVersionRe = regexp.MustCompile(`docker/([0-9]+(?:\.[0-9]+){1,2})`)

// Parse returns the Docker version embedded in a User-Agent string, or
// nil when the client cannot be identified.
func Parse(userAgent string) *semver.Version {
	match := uaVersionRe.FindStringSubmatch(strings.ToLower(userAgent))
	if match == nil {
		return nil
	}
	v, err := semver.NewVersion(match[1])
	if err != nil {
		return nil
	}
	return v
}

// Blacklist holds the version constraint for clients that must be
// rejected.
type Blacklist struct {
	constraint *semver.Constraints
}

// NewBlacklist parses the configured constraint. An empty constraint
// blacklists nothing.
func NewBlacklist(constraint string) (*Blacklist, error) {
	if constraint == "" {
		return &Blacklist{}, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, err
	}
	return &Blacklist{constraint: c}, nil
}

// Matches reports whether the client behind the User-Agent is
// blacklisted. Unidentifiable clients fail open: they are assumed newer
// than any blacklisted version.
func (b *Blacklist) Matches(userAgent string) bool {
	if b == nil || b.constraint == nil {
		return false
	}
	v := Parse(userAgent)
	if v == nil {
		return false
	}
	return b.constraint.Check(v)
}
