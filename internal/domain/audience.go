package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Audience is an access-control tag restricting which chunks a query may
// retrieve.
type Audience string

// Known audiences.
const (
	AudienceCustomer      Audience = "customer"
	AudienceFieldEngineer Audience = "field-engineer"
	AudienceAdmin         Audience = "admin"
)

// ParseAudience validates an audience string.
func ParseAudience(s string) (Audience, error) {
	switch Audience(s) {
	case AudienceCustomer, AudienceFieldEngineer, AudienceAdmin:
		return Audience(s), nil
	}
	return "", fmt.Errorf("unknown audience %q: %w", s, ErrValidation)
}

// AudienceSet is a set of audience tags.
type AudienceSet map[Audience]struct{}

// NewAudienceSet builds a set from tags, rejecting unknown values.
func NewAudienceSet(tags ...string) (AudienceSet, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("at least one audience tag is required: %w", ErrValidation)
	}
	set := make(AudienceSet, len(tags))
	for _, t := range tags {
		a, err := ParseAudience(t)
		if err != nil {
			return nil, err
		}
		set[a] = struct{}{}
	}
	return set, nil
}

// Contains reports whether a is in the set.
func (s AudienceSet) Contains(a Audience) bool {
	_, ok := s[a]
	return ok
}

// Slice returns the tags in sorted order for deterministic serialization.
func (s AudienceSet) Slice() []string {
	out := make([]string, 0, len(s))
	for a := range s {
		out = append(out, string(a))
	}
	sort.Strings(out)
	return out
}

// String joins the sorted tags with commas.
func (s AudienceSet) String() string {
	return strings.Join(s.Slice(), ",")
}

// Clone returns an independent copy of the set.
func (s AudienceSet) Clone() AudienceSet {
	if s == nil {
		return nil
	}
	c := make(AudienceSet, len(s))
	for a := range s {
		c[a] = struct{}{}
	}
	return c
}
