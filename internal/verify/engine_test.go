package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verifier-replay/verifier-server/internal/corpus"
)

func TestVerifyEqualityPasses(t *testing.T) {
	e := New(false)
	actual := &corpus.HttpMessage{Fields: []corpus.Field{{Name: "Host", Value: "example.com"}}}
	expected := &corpus.HttpMessage{
		Fields: []corpus.Field{{Name: "Host", Value: "example.com"}},
		Rules:  map[string]*corpus.FieldRule{"host": {Name: "Host", Value: "example.com", Mode: corpus.MatchEquality}},
	}

	result := e.Verify(actual, expected)
	assert.True(t, result.Passed())
}

func TestVerifyEqualityFails(t *testing.T) {
	e := New(false)
	actual := &corpus.HttpMessage{Fields: []corpus.Field{{Name: "Host", Value: "other.com"}}}
	expected := &corpus.HttpMessage{
		Fields: []corpus.Field{{Name: "Host", Value: "example.com"}},
		Rules:  map[string]*corpus.FieldRule{"host": {Name: "Host", Value: "example.com", Mode: corpus.MatchEquality}},
	}

	result := e.Verify(actual, expected)
	require.False(t, result.Passed())
	assert.Len(t, result.Mismatches, 1)
}

func TestVerifyNonStrictSkipsFieldsWithoutRules(t *testing.T) {
	e := New(false)
	actual := &corpus.HttpMessage{}
	expected := &corpus.HttpMessage{Fields: []corpus.Field{{Name: "X-Extra", Value: "anything"}}}

	result := e.Verify(actual, expected)
	assert.True(t, result.Passed())
}

func TestVerifyStrictPromotesMissingRuleToEquality(t *testing.T) {
	e := New(true)
	actual := &corpus.HttpMessage{}
	expected := &corpus.HttpMessage{Fields: []corpus.Field{{Name: "X-Extra", Value: "anything"}}}

	result := e.Verify(actual, expected)
	require.False(t, result.Passed())
	assert.Equal(t, "X-Extra", result.Mismatches[0].Field)
}

func TestVerifyAbsenceRule(t *testing.T) {
	e := New(false)
	actual := &corpus.HttpMessage{Fields: []corpus.Field{{Name: "X-Forwarded-For", Value: "1.2.3.4"}}}
	expected := &corpus.HttpMessage{
		Rules: map[string]*corpus.FieldRule{"x-forwarded-for": {Name: "X-Forwarded-For", Mode: corpus.MatchAbsence}},
	}

	result := e.Verify(actual, expected)
	require.False(t, result.Passed())
}

func TestVerifyPresenceAnyRule(t *testing.T) {
	e := New(false)
	actual := &corpus.HttpMessage{Fields: []corpus.Field{{Name: "Authorization", Value: "Bearer xyz"}}}
	expected := &corpus.HttpMessage{
		Rules: map[string]*corpus.FieldRule{"authorization": {Name: "Authorization", Mode: corpus.MatchPresenceAny}},
	}

	result := e.Verify(actual, expected)
	assert.True(t, result.Passed())
}

func TestVerifyContainsPrefixSuffixRegex(t *testing.T) {
	e := New(false)
	actual := &corpus.HttpMessage{Fields: []corpus.Field{
		{Name: "User-Agent", Value: "proxy/1.0 test-client"},
	}}
	expected := &corpus.HttpMessage{
		Fields: []corpus.Field{{Name: "User-Agent", Value: ""}},
		Rules: map[string]*corpus.FieldRule{
			"user-agent": {Name: "User-Agent", Value: "proxy", Mode: corpus.MatchPrefix},
		},
	}
	assert.True(t, e.Verify(actual, expected).Passed())

	expected.Rules["user-agent"] = &corpus.FieldRule{Name: "User-Agent", Value: "client", Mode: corpus.MatchSuffix}
	assert.True(t, e.Verify(actual, expected).Passed())

	expected.Rules["user-agent"] = &corpus.FieldRule{Name: "User-Agent", Value: "1\\.0", Mode: corpus.MatchRegex}
	assert.True(t, e.Verify(actual, expected).Passed())

	expected.Rules["user-agent"] = &corpus.FieldRule{Name: "User-Agent", Value: "nope", Mode: corpus.MatchContains}
	assert.False(t, e.Verify(actual, expected).Passed())
}

func TestVerifyContent(t *testing.T) {
	assert.True(t, VerifyContent([]byte("hello world"), &corpus.ContentRule{Mode: corpus.MatchContains, Value: "world"}))
	assert.False(t, VerifyContent([]byte("hello world"), &corpus.ContentRule{Mode: corpus.MatchEquality, Value: "hello"}))
	assert.True(t, VerifyContent(nil, nil))
}
