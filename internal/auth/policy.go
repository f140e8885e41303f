// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Name length constraints applied when a policy does not override them.
const (
	DefaultMinNameLength = 3
	DefaultMaxNameLength = 30
)

// DefaultNamePattern matches names that start with a letter and contain only
// letters, numbers, and underscores.
const DefaultNamePattern = `^[A-Za-z][A-Za-z0-9_]*$`

// guestNameRegex matches the reserved shape of server-assigned names.
var guestNameRegex = regexp.MustCompile(`^guest[0-9]+$`)

// IsGuestName reports whether name is "guest" followed by one or more digits.
// The comparison is case-sensitive: "Guest1" is not a guest name.
func IsGuestName(name string) bool {
	return guestNameRegex.MatchString(name)
}

// NamePolicyConfig describes the naming rules of a server.
type NamePolicyConfig struct {
	Pattern   string
	MinLength int
	MaxLength int
	// Reserved holds glob patterns (e.g. "admin*") that can never be claimed.
	Reserved []string
}

// NamePolicy holds the syntactic naming rules. It is immutable after
// construction and safe for concurrent use.
type NamePolicy struct {
	pattern   *regexp.Regexp
	minLength int
	maxLength int
	reserved  []glob.Glob
}

// NewNamePolicy compiles cfg into a NamePolicy. Zero values fall back to the
// package defaults.
func NewNamePolicy(cfg NamePolicyConfig) (*NamePolicy, error) {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = DefaultNamePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, oops.Code(CodeInvalidPolicy).
			With("pattern", pattern).
			Wrap(err)
	}

	minLength, maxLength := cfg.MinLength, cfg.MaxLength
	if minLength <= 0 {
		minLength = DefaultMinNameLength
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxNameLength
	}
	if minLength > maxLength {
		return nil, oops.Code(CodeInvalidPolicy).
			With("min", minLength).
			With("max", maxLength).
			Errorf("minimum name length exceeds maximum")
	}

	reserved := make([]glob.Glob, 0, len(cfg.Reserved))
	for _, p := range cfg.Reserved {
		g, err := glob.Compile(strings.TrimSpace(p))
		if err != nil {
			return nil, oops.Code(CodeInvalidPolicy).
				With("reserved", p).
				Wrap(err)
		}
		reserved = append(reserved, g)
	}

	return &NamePolicy{
		pattern:   re,
		minLength: minLength,
		maxLength: maxLength,
		reserved:  reserved,
	}, nil
}

// DefaultNamePolicy returns the policy built from the package defaults.
func DefaultNamePolicy() *NamePolicy {
	p, err := NewNamePolicy(NamePolicyConfig{})
	if err != nil {
		panic(err)
	}
	return p
}

// ValidSyntax reports whether name satisfies the naming rules.
// It is total: every string, including "", yields an answer.
func (p *NamePolicy) ValidSyntax(name string) bool {
	if len(name) < p.minLength || len(name) > p.maxLength {
		return false
	}
	if !p.pattern.MatchString(name) {
		return false
	}
	return !p.IsReserved(name)
}

// IsReserved reports whether name matches one of the reserved globs.
func (p *NamePolicy) IsReserved(name string) bool {
	for _, g := range p.reserved {
		if g.Match(name) {
			return true
		}
	}
	return false
}
