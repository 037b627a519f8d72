package corpus

import "strings"

// KeyFormatter derives a catalog key from request metadata using a
// user-configurable template (§4.1, §6 --format). The same formatter is
// applied at load time (to each transaction's proxy-request) and at request
// time (to each parsed request), guaranteeing symmetry.
//
// Supported tokens:
//
//	{method}        - the request method, e.g. "GET"
//	{scheme}        - "http" or "https"
//	{authority}     - the Host / :authority value
//	{path}          - the request path
//	{url}           - "{method} {path}", e.g. "GET /x"
//	{field:<name>}  - the value of the named request header, case-insensitive
//
// Any other literal text in the template is copied through unchanged, so a
// template like "{method}:{field:x-txn-id}" is valid.
type KeyFormatter struct {
	template string
}

// DefaultKeyFormat is used when --format is not specified.
const DefaultKeyFormat = "{url}"

// NewKeyFormatter builds a formatter for the given template, defaulting to
// DefaultKeyFormat when template is empty.
func NewKeyFormatter(template string) *KeyFormatter {
	if template == "" {
		template = DefaultKeyFormat
	}
	return &KeyFormatter{template: template}
}

// String returns the formatter's template, for diagnostics.
func (f *KeyFormatter) String() string {
	return f.template
}

// Key derives the catalog key for the given message.
func (f *KeyFormatter) Key(m *HttpMessage) string {
	var b strings.Builder
	rest := f.template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		b.WriteString(rest[:start])
		token := rest[start+1 : end]
		b.WriteString(f.resolveToken(token, m))
		rest = rest[end+1:]
	}
	return b.String()
}

func (f *KeyFormatter) resolveToken(token string, m *HttpMessage) string {
	switch {
	case token == "method":
		return m.Method
	case token == "scheme":
		return m.Scheme
	case token == "authority":
		return m.Authority
	case token == "path":
		return m.Path
	case token == "url":
		return m.Method + " " + m.Path
	case strings.HasPrefix(token, "field:"):
		name := token[len("field:"):]
		if fld, ok := m.FindField(name); ok {
			return fld.Value
		}
		return ""
	default:
		return ""
	}
}
