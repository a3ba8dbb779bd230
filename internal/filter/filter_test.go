package filter

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yairfalse/tagconnect/internal/errors"
)

func TestParse_SplitsOnFirstEquals(t *testing.T) {
	f, err := Parse("Config=key=value")
	require.NoError(t, err)
	assert.Equal(t, "Config", f.Key)
	assert.Equal(t, "key=value", f.Value)
}

func TestParse_Trims(t *testing.T) {
	f, err := Parse("  Environment = prod ")
	require.NoError(t, err)
	assert.Equal(t, Filter{Key: "Environment", Value: "prod"}, f)
}

func TestParse_Malformed(t *testing.T) {
	for _, token := range []string{"", "Environment", "=prod", "Environment=", "  =  ", " = x"} {
		t.Run(token, func(t *testing.T) {
			_, err := Parse(token)
			assert.ErrorIs(t, err, apperrors.ErrMalformedFilter)
		})
	}
}

func TestAdd_StrictRejectsUnsafe(t *testing.T) {
	for _, token := range []string{
		"Name=it's",
		`Name=say "hi"`,
		"Name=`id`",
		`Name=a\b`,
		"Name=$HOME",
		"Na$me=x",
	} {
		t.Run(token, func(t *testing.T) {
			s := NewStrict()
			err := s.Add(token)
			assert.ErrorIs(t, err, apperrors.ErrUnsafeFilterValue)
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestAdd_LenientAcceptsSpecialChars(t *testing.T) {
	s := New()
	require.NoError(t, s.Add("Name=$HOME"))
	assert.Equal(t, 1, s.Len())
}

func TestAddAll_StopsAtFirstError(t *testing.T) {
	s := NewStrict()
	err := s.AddAll([]string{"Environment=prod", "broken", "Team=backend"})
	assert.ErrorIs(t, err, apperrors.ErrMalformedFilter)
	assert.Equal(t, 1, s.Len())
}

func TestFilters_PreservesOrder(t *testing.T) {
	s := New()
	require.NoError(t, s.AddAll([]string{"b=2", "a=1", "c=3"}))

	got := s.Filters()
	assert.Equal(t, []Filter{{"b", "2"}, {"a", "1"}, {"c", "3"}}, got)

	// Returned slice is a copy
	got[0].Key = "mutated"
	assert.Equal(t, "b", s.Filters()[0].Key)
}

func TestMatches_EmptySetMatchesEverything(t *testing.T) {
	s := New()
	assert.True(t, s.Matches(nil))
	assert.True(t, s.Matches(map[string]string{"env": "prod"}))
}

func TestMatches_AllRequired(t *testing.T) {
	s := New()
	require.NoError(t, s.AddAll([]string{"Environment=prod", "Team=backend"}))

	// Has both tags - should match
	assert.True(t, s.Matches(map[string]string{"Environment": "prod", "Team": "backend", "Name": "x"}))

	// Missing one tag - should not match
	assert.False(t, s.Matches(map[string]string{"Environment": "prod"}))
	assert.False(t, s.Matches(map[string]string{"Team": "backend"}))

	// Wrong value
	assert.False(t, s.Matches(map[string]string{"Environment": "staging", "Team": "backend"}))
}

func TestMatches_OrderIndependent(t *testing.T) {
	labels := map[string]string{"a": "1", "b": "2", "c": "3"}
	tokens := [][]string{
		{"a=1", "b=2", "c=3"},
		{"c=3", "a=1", "b=2"},
		{"b=2", "c=3", "a=1"},
	}

	for _, order := range tokens {
		s := New()
		require.NoError(t, s.AddAll(order))
		assert.True(t, s.Matches(labels), "order %v", order)
	}

	for _, order := range tokens {
		s := New()
		require.NoError(t, s.AddAll(append(order, "d=4")))
		assert.False(t, s.Matches(labels), "order %v", order)
	}
}

func TestMatches_NoWildcards(t *testing.T) {
	s := New()
	require.NoError(t, s.Add("Name=web-*"))
	assert.False(t, s.Matches(map[string]string{"Name": "web-1"}))
	assert.True(t, s.Matches(map[string]string{"Name": "web-*"}))
}

func TestDescribe(t *testing.T) {
	s := New()
	assert.Equal(t, "all databases", s.Describe("databases"))

	require.NoError(t, s.Add("Team=backend"))
	assert.Equal(t, "databases with Team=backend", s.Describe("databases"))

	require.NoError(t, s.Add("Environment=prod"))
	assert.Equal(t, "databases with 2 tag filters", s.Describe("databases"))
}

func TestEC2Filters(t *testing.T) {
	s := New()
	require.NoError(t, s.AddAll([]string{"Environment=prod", "Team=backend"}))

	filters := s.EC2Filters()
	require.Len(t, filters, 2)
	assert.Equal(t, "tag:Environment", aws.ToString(filters[0].Name))
	assert.Equal(t, []string{"prod"}, filters[0].Values)
	assert.Equal(t, "tag:Team", aws.ToString(filters[1].Name))
	assert.Equal(t, []string{"backend"}, filters[1].Values)
}
