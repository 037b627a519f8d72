// Package verify implements the Verification Engine (§4.7): given the
// actual header field list from a parsed request and the expected
// FieldRule set recorded for the corresponding transaction, determine
// pass/fail per field.
//
// Grounded on verify_headers in original_source/verifier-server.cc.
package verify

import (
	"regexp"
	"strings"

	"github.com/verifier-replay/verifier-server/internal/corpus"
)

// Mismatch describes one failing field, for logging/diagnostics.
type Mismatch struct {
	Field  string
	Reason string
}

// Result is the outcome of verifying one request against one expectation.
type Result struct {
	Mismatches []Mismatch
}

// Passed reports whether no field failed verification.
func (r Result) Passed() bool { return len(r.Mismatches) == 0 }

// Engine runs FieldRule checks against an actual field list.
type Engine struct {
	// Strict mode: any recorded field without an explicit rule is
	// implicitly promoted to equality (§4.7).
	Strict bool
}

// New returns an Engine with the given strict-mode setting.
func New(strict bool) *Engine {
	return &Engine{Strict: strict}
}

// Verify checks actual against the rules recorded on expected (the
// proxy-request template) and returns every mismatch found. It never
// mutates its inputs and never aborts early — every rule is checked so
// callers get a complete diagnostic.
func (e *Engine) Verify(actual *corpus.HttpMessage, expected *corpus.HttpMessage) Result {
	var res Result

	actualByName := map[string]string{}
	for _, f := range actual.Fields {
		actualByName[strings.ToLower(f.Name)] = f.Value
	}

	checked := map[string]bool{}

	for _, ef := range expected.Fields {
		name := strings.ToLower(ef.Name)
		if checked[name] {
			continue
		}
		checked[name] = true
		rule := expected.Rules[name]
		if rule == nil {
			if !e.Strict {
				continue
			}
			rule = &corpus.FieldRule{Name: ef.Name, Value: ef.Value, Mode: corpus.MatchEquality}
		}
		if m, ok := e.checkRule(name, rule, actualByName); !ok {
			res.Mismatches = append(res.Mismatches, m)
		}
	}

	// Rules recorded standalone (e.g. a pure "absence" or "presence-any"
	// check for a field that never appears in expected.Fields) still apply.
	for name, rule := range expected.Rules {
		if checked[name] {
			continue
		}
		if m, ok := e.checkRule(name, rule, actualByName); !ok {
			res.Mismatches = append(res.Mismatches, m)
		}
	}

	return res
}

func (e *Engine) checkRule(name string, rule *corpus.FieldRule, actual map[string]string) (Mismatch, bool) {
	value, present := actual[name]
	switch rule.Mode {
	case corpus.MatchAbsence:
		if present {
			return Mismatch{Field: rule.Name, Reason: "field must be absent but was present"}, false
		}
		return Mismatch{}, true
	case corpus.MatchPresenceAny:
		if !present {
			return Mismatch{Field: rule.Name, Reason: "field must be present"}, false
		}
		return Mismatch{}, true
	}

	if !present {
		return Mismatch{Field: rule.Name, Reason: "expected field not present"}, false
	}

	switch rule.Mode {
	case corpus.MatchEquality:
		if value != rule.Value {
			return Mismatch{Field: rule.Name, Reason: "value does not equal expected value"}, false
		}
	case corpus.MatchContains:
		if !strings.Contains(value, rule.Value) {
			return Mismatch{Field: rule.Name, Reason: "value does not contain expected substring"}, false
		}
	case corpus.MatchPrefix:
		if !strings.HasPrefix(value, rule.Value) {
			return Mismatch{Field: rule.Name, Reason: "value does not have expected prefix"}, false
		}
	case corpus.MatchSuffix:
		if !strings.HasSuffix(value, rule.Value) {
			return Mismatch{Field: rule.Name, Reason: "value does not have expected suffix"}, false
		}
	case corpus.MatchRegex:
		re, err := regexp.Compile(rule.Value)
		if err != nil || !re.MatchString(value) {
			return Mismatch{Field: rule.Name, Reason: "value does not match expected pattern"}, false
		}
	}
	return Mismatch{}, true
}

// VerifyContent checks a drained request body against a ContentRule, used
// by the H1 body-drain path (§4.4 step 6).
func VerifyContent(body []byte, rule *corpus.ContentRule) bool {
	if rule == nil {
		return true
	}
	s := string(body)
	switch rule.Mode {
	case corpus.MatchEquality:
		return s == rule.Value
	case corpus.MatchContains:
		return strings.Contains(s, rule.Value)
	case corpus.MatchPrefix:
		return strings.HasPrefix(s, rule.Value)
	case corpus.MatchSuffix:
		return strings.HasSuffix(s, rule.Value)
	case corpus.MatchRegex:
		re, err := regexp.Compile(rule.Value)
		return err == nil && re.MatchString(s)
	default:
		return true
	}
}
