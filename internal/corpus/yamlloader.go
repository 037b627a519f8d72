package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verifier-replay/verifier-server/internal/errx"
	"gopkg.in/yaml.v3"
)

// YAMLLoader parses a corpus of session/transaction files written in the
// declarative YAML shape used by this project's replay files. It walks path
// recursively when path is a directory, loading every *.yaml/*.yml file.
//
// Grounded on original_source/verifier-server.cc's ServerReplayFileHandler:
// the merge-then-derive-key ordering, the "last write wins" key tracking
// across client-request/proxy-request/all, and the node names themselves
// (client-request, proxy-request, server-response, all/headers/fields,
// protocol, tls, delay) are all transliterated from that file.
type YAMLLoader struct {
	KeyFormat string
}

var _ Loader = (*YAMLLoader)(nil)

func (l *YAMLLoader) Load(path string, sink Sink) error {
	info, err := os.Stat(path)
	if err != nil {
		return errx.Load(path, 0, "cannot stat corpus path", err)
	}
	if !info.IsDir() {
		return l.loadFile(path, sink)
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errx.Load(p, 0, "cannot walk corpus directory", err)
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(p, ".yaml") && !strings.HasSuffix(p, ".yml") {
			return nil
		}
		return l.loadFile(p, sink)
	})
}

func (l *YAMLLoader) loadFile(path string, sink Sink) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errx.Load(path, 0, "cannot read corpus file", err)
	}
	var doc fileNode
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errx.Load(path, 0, "malformed YAML", err)
	}
	for _, ssn := range doc.Sessions {
		if err := l.loadSession(path, ssn, sink); err != nil {
			return err
		}
	}
	return nil
}

func (l *YAMLLoader) loadSession(path string, ssn sessionNode, sink Sink) error {
	ssnAllFields, ssnAllRules := parseFields(ssn.All)
	for _, txn := range ssn.Transactions {
		if err := l.loadTransaction(path, ssn, txn, ssnAllFields, ssnAllRules, sink); err != nil {
			return err
		}
	}
	return nil
}

func (l *YAMLLoader) loadTransaction(
	path string,
	ssn sessionNode,
	txn txnNode,
	ssnAllFields []Field,
	ssnAllRules map[string]*FieldRule,
	sink Sink,
) error {
	if txn.ServerResponse == nil {
		return errx.Load(path, txn.Line, "transaction does not have a server-response", nil)
	}

	formatter := NewKeyFormatter(l.KeyFormat)
	var key string

	protocolNodes := txn.Protocol
	if len(protocolNodes) == 0 {
		protocolNodes = ssn.Protocol
	}
	proto, sni, tlsDirectives, hasTLS := resolveProtocol(protocolNodes)

	if hasTLS && sni != "" {
		if err := sink.TLSBehavior(sni, tlsDirectives); err != nil {
			return err
		}
	}

	req := HttpMessage{IsRequest: true, Protocol: proto}
	if txn.ClientRequest != nil {
		populateMessage(txn.ClientRequest, &req)
		if k := formatter.Key(&req); k != "" {
			key = k
		}
	}
	if txn.ProxyRequest != nil {
		populateMessage(txn.ProxyRequest, &req)
		if k := formatter.Key(&req); k != "" {
			key = k
		}
	}

	resp := HttpMessage{IsRequest: false, Protocol: proto}
	populateResponse(txn.ServerResponse, &resp)

	// Session-level "all" merge applies to both messages and may change the
	// derived key (merge first, then (re)confirm the key — supplemented
	// feature #7/#8).
	mergeFields(&req, ssnAllFields, ssnAllRules)
	mergeFields(&resp, ssnAllFields, ssnAllRules)
	if txn.All != nil {
		txnAllFields, txnAllRules := parseFields(txn.All)
		mergeFields(&req, txnAllFields, txnAllRules)
		mergeFields(&resp, txnAllFields, txnAllRules)
	}
	if k := formatter.Key(&req); k != "" {
		key = k
	}

	if key == "" {
		return errx.Load(path, txn.Line, fmt.Sprintf("could not derive a key of format %q for transaction", formatter), nil)
	}

	var delay time.Duration
	if txn.ServerResponse.Delay != "" {
		d, err := time.ParseDuration(txn.ServerResponse.Delay)
		if err != nil {
			return errx.Load(path, txn.Line, "server-response has a bad delay value", err)
		}
		delay = d
	}

	return sink.Transaction(Transaction{
		Key:      key,
		Request:  req,
		Response: resp,
		Protocol: proto,
		Delay:    delay,
		File:     path,
		Line:     txn.Line,
	})
}

func resolveProtocol(nodes []protocolNode) (proto Protocol, sni string, directives TLSDirectives, hasTLS bool) {
	proto = ProtocolH1
	for _, n := range nodes {
		switch strings.ToLower(n.Name) {
		case "http":
			switch n.Version {
			case "2":
				proto = ProtocolH2
			case "3":
				proto = ProtocolH3
			}
		case "tls":
			hasTLS = true
			sni = n.SNI
			directives.RequestCertificate = n.RequestCertificate
			directives.ProxyProvidedCertificate = n.ProxyProvidedCertificate
			directives.VerifyMode = n.VerifyMode
			if n.ALPNProtocols != "" {
				directives.ALPN = strings.Split(n.ALPNProtocols, ",")
			}
		}
	}
	return
}

func populateMessage(n *messageNode, m *HttpMessage) {
	if n.Method != "" {
		m.Method = n.Method
	}
	if n.Scheme != "" {
		m.Scheme = n.Scheme
	}
	if n.Authority != "" {
		m.Authority = n.Authority
	}
	if n.URL != "" {
		m.Path = n.URL
	}
	fields, rules := parseFields(n.Headers)
	mergeFields(m, fields, rules)
	if n.Content != nil {
		applyContent(n.Content, m)
	}
}

func populateResponse(n *responseNode, m *HttpMessage) {
	m.Status = n.Status
	m.Reason = n.Reason
	fields, rules := parseFields(n.Headers)
	mergeFields(m, fields, rules)
	if n.Content != nil {
		applyContent(n.Content, m)
	}
}

func applyContent(n *contentNode, m *HttpMessage) {
	if n.Data != "" {
		m.ContentLiteral = []byte(n.Data)
		m.ContentSize = int64(len(n.Data))
		return
	}
	m.ContentSize = n.Size
}

// mergeFields appends fields not already present (by name) onto m.Fields,
// and merges rules into m.Rules, matching HttpHeader::merge's
// add-if-absent semantics for headers coming from session/txn "all" blocks.
func mergeFields(m *HttpMessage, fields []Field, rules map[string]*FieldRule) {
	if m.Rules == nil {
		m.Rules = map[string]*FieldRule{}
	}
	existing := map[string]bool{}
	for _, f := range m.Fields {
		existing[strings.ToLower(f.Name)] = true
	}
	for _, f := range fields {
		key := strings.ToLower(f.Name)
		if !existing[key] {
			m.Fields = append(m.Fields, f)
			existing[key] = true
		}
	}
	for k, r := range rules {
		if _, ok := m.Rules[k]; !ok {
			m.Rules[k] = r
		}
	}
}

func parseFields(n interface{ fieldRows() [][]string }) ([]Field, map[string]*FieldRule) {
	if n == nil {
		return nil, map[string]*FieldRule{}
	}
	rows := n.fieldRows()
	fields := make([]Field, 0, len(rows))
	rules := map[string]*FieldRule{}
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		name, value := row[0], row[1]
		fields = append(fields, Field{Name: name, Value: value})
		if len(row) >= 3 {
			rules[strings.ToLower(name)] = parseRule(name, value, row[2])
		}
	}
	return fields, rules
}

func parseRule(name, value, mode string) *FieldRule {
	r := &FieldRule{Name: name, Value: value, Explicit: true}
	switch strings.ToLower(mode) {
	case "equal", "equality", "":
		r.Mode = MatchEquality
	case "contains":
		r.Mode = MatchContains
	case "prefix":
		r.Mode = MatchPrefix
	case "suffix":
		r.Mode = MatchSuffix
	case "regex":
		r.Mode = MatchRegex
	case "absent", "absence":
		r.Mode = MatchAbsence
	case "present", "presence", "presence-any":
		r.Mode = MatchPresenceAny
	default:
		r.Mode = MatchEquality
	}
	return r
}

// --- YAML document shape ---

type fileNode struct {
	Sessions []sessionNode `yaml:"sessions"`
}

type sessionNode struct {
	Protocol     []protocolNode `yaml:"protocol"`
	All          *allNode       `yaml:"all"`
	Transactions []txnNode      `yaml:"transactions"`
}

type txnNode struct {
	// Line is the 1-based source line of this transaction's mapping node,
	// captured by UnmarshalYAML below so load-time errors can report real
	// corpus position (§7) instead of a placeholder.
	Line int

	Protocol       []protocolNode `yaml:"protocol"`
	ClientRequest  *messageNode   `yaml:"client-request"`
	ProxyRequest   *messageNode   `yaml:"proxy-request"`
	ServerResponse *responseNode  `yaml:"server-response"`
	All            *allNode       `yaml:"all"`
}

// UnmarshalYAML decodes the node and then records value.Line on it,
// mirroring how the original tracks node.Mark().line through
// verifier-server.cc's transaction parsing. txnAlias has no UnmarshalYAML
// method, so decoding into it does not recurse.
func (t *txnNode) UnmarshalYAML(value *yaml.Node) error {
	type txnAlias txnNode
	var a txnAlias
	if err := value.Decode(&a); err != nil {
		return err
	}
	*t = txnNode(a)
	t.Line = value.Line
	return nil
}

type protocolNode struct {
	Name                     string `yaml:"name"`
	Version                  string `yaml:"version"`
	SNI                      string `yaml:"sni"`
	RequestCertificate       *bool  `yaml:"request-certificate"`
	ProxyProvidedCertificate *bool  `yaml:"proxy-provided-certificate"`
	VerifyMode               *int   `yaml:"verify-mode"`
	ALPNProtocols            string `yaml:"alpn-protocols"`
}

type allNode struct {
	Headers *headersNode `yaml:"headers"`
}

func (n *allNode) fieldRows() [][]string {
	if n == nil || n.Headers == nil {
		return nil
	}
	return n.Headers.Fields
}

type headersNode struct {
	Fields [][]string `yaml:"fields"`
}

func (n *headersNode) fieldRows() [][]string {
	if n == nil {
		return nil
	}
	return n.Fields
}

type messageNode struct {
	Method    string       `yaml:"method"`
	URL       string       `yaml:"url"`
	Scheme    string       `yaml:"scheme"`
	Authority string       `yaml:"authority"`
	Headers   *headersNode `yaml:"headers"`
	Content   *contentNode `yaml:"content"`
}

type responseNode struct {
	Status  int          `yaml:"status"`
	Reason  string       `yaml:"reason"`
	Headers *headersNode `yaml:"headers"`
	Content *contentNode `yaml:"content"`
	Delay   string       `yaml:"delay"`
}

type contentNode struct {
	Size int64  `yaml:"size"`
	Data string `yaml:"data"`
}
