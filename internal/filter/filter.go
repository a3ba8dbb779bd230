// Package filter provides tag filtering for tagconnect discovery.
package filter

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	apperrors "github.com/yairfalse/tagconnect/internal/errors"
)

// unsafeChars may not appear in filter keys or values of a strict set.
const unsafeChars = "'\"`\\$"

// Filter is a single KEY=VALUE tag requirement.
type Filter struct {
	Key   string
	Value string
}

// String renders the filter as KEY=VALUE.
func (f Filter) String() string {
	return f.Key + "=" + f.Value
}

// Parse splits token on its first '=' only, so values may contain '='.
func Parse(token string) (Filter, error) {
	key, value, ok := strings.Cut(token, "=")
	if !ok {
		return Filter{}, fmt.Errorf("%q: %w", token, apperrors.ErrMalformedFilter)
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return Filter{}, fmt.Errorf("%q: %w", token, apperrors.ErrMalformedFilter)
	}

	return Filter{Key: key, Value: value}, nil
}

// Set is an ordered collection of filters with AND semantics.
// Order only affects how the set is displayed.
type Set struct {
	filters []Filter
	strict  bool
}

// New creates an empty filter set.
func New() *Set {
	return &Set{}
}

// NewStrict creates a filter set that rejects values unsafe to place in a
// generated query expression.
func NewStrict() *Set {
	return &Set{strict: true}
}

// Add parses token and appends it to the set.
func (s *Set) Add(token string) error {
	f, err := Parse(token)
	if err != nil {
		return err
	}

	if s.strict && (strings.ContainsAny(f.Key, unsafeChars) || strings.ContainsAny(f.Value, unsafeChars)) {
		return fmt.Errorf("%q: %w", token, apperrors.ErrUnsafeFilterValue)
	}

	s.filters = append(s.filters, f)
	return nil
}

// AddAll adds every token, stopping at the first invalid one.
func (s *Set) AddAll(tokens []string) error {
	for _, token := range tokens {
		if err := s.Add(token); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of filters.
func (s *Set) Len() int {
	return len(s.filters)
}

// Filters returns a copy of the filters in insertion order.
func (s *Set) Filters() []Filter {
	out := make([]Filter, len(s.filters))
	copy(out, s.filters)
	return out
}

// Matches returns true if labels contain every filter's key with the same value.
func (s *Set) Matches(labels map[string]string) bool {
	for _, f := range s.filters {
		v, ok := labels[f.Key]
		if !ok || v != f.Value {
			return false
		}
	}
	return true
}

// Describe phrases the set for status messages, e.g. "databases with Team=backend".
func (s *Set) Describe(noun string) string {
	switch len(s.filters) {
	case 0:
		return "all " + noun
	case 1:
		return fmt.Sprintf("%s with %s", noun, s.filters[0])
	default:
		return fmt.Sprintf("%s with %d tag filters", noun, len(s.filters))
	}
}

// EC2Filters converts the set into server-side EC2 tag filters.
func (s *Set) EC2Filters() []ec2types.Filter {
	out := make([]ec2types.Filter, 0, len(s.filters))
	for _, f := range s.filters {
		out = append(out, ec2types.Filter{
			Name:   aws.String("tag:" + f.Key),
			Values: []string{f.Value},
		})
	}
	return out
}
