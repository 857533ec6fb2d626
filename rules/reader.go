package rules

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the markup used for rule descriptors
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFormat converts a format name (yaml, yml, json) to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatYAML, fmt.Errorf("unknown rule format: %s (use yaml or json)", s)
	}
}

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithFormat selects the descriptor markup (YAML by default)
func WithFormat(f Format) ReaderOption {
	return func(r *Reader) {
		r.format = f
	}
}

// WithStrictFields rejects rule documents carrying keys other than
// name, description, priority, condition and actions.
func WithStrictFields() ReaderOption {
	return func(r *Reader) {
		r.strict = true
	}
}

// Reader turns rule descriptors into RuleDefinitions.
// It holds configuration only and is safe for concurrent use.
// The caller owns the io.Reader passed to Read and ReadAll.
type Reader struct {
	format Format
	strict bool
}

// NewReader creates a reader for YAML descriptors unless told otherwise
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{format: FormatYAML}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Format returns the markup this reader parses
func (r *Reader) Format() Format {
	return r.format
}

// Read parses a source holding exactly one rule document.
// In JSON format the document must be a single object; a top-level
// array is rejected even when it holds one element.
func (r *Reader) Read(src io.Reader) (RuleDefinition, error) {
	docs, err := r.tokenize(src)
	if err != nil {
		return RuleDefinition{}, atIndex(err, -1)
	}

	switch len(docs) {
	case 0:
		return RuleDefinition{}, &MalformedDocumentError{Index: -1, Err: errors.New("no rule document found")}
	case 1:
		if docs[0].fromArray {
			return RuleDefinition{}, &MalformedDocumentError{
				Index: -1,
				Err:   errors.New("expected a single rule object, got an array"),
			}
		}
		return r.build(docs[0])
	default:
		return RuleDefinition{}, &MalformedDocumentError{
			Index: -1,
			Err:   fmt.Errorf("expected a single rule document but found %d", len(docs)),
		}
	}
}

// ReadAll parses a source holding zero or more rule documents, in order.
// The first malformed or invalid document fails the whole call.
func (r *Reader) ReadAll(src io.Reader) ([]RuleDefinition, error) {
	docs, err := r.tokenize(src)
	if err != nil {
		return nil, err
	}

	defs := make([]RuleDefinition, 0, len(docs))
	for i, doc := range docs {
		def, err := r.build(doc)
		if err != nil {
			return nil, atIndex(err, i)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ReadFile reads a single rule document from a file.
// A .json extension selects JSON regardless of the configured format.
func (r *Reader) ReadFile(path string) (RuleDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return RuleDefinition{}, fmt.Errorf("failed to open rule file %s: %w", path, err)
	}
	defer f.Close()

	return r.forPath(path).Read(f)
}

// ReadAllFile reads every rule document from a file
func (r *Reader) ReadAllFile(path string) ([]RuleDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file %s: %w", path, err)
	}
	defer f.Close()

	return r.forPath(path).ReadAll(f)
}

func (r *Reader) forPath(path string) *Reader {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = FormatJSON
	case ".yml", ".yaml":
		format = FormatYAML
	default:
		return r
	}
	if format == r.format {
		return r
	}
	return &Reader{format: format, strict: r.strict}
}

func (r *Reader) build(doc rawDocument) (RuleDefinition, error) {
	if r.strict {
		for _, key := range doc.keys {
			if !ruleDocumentFields[key] {
				return RuleDefinition{}, &InvalidRuleDefinitionError{
					Index:  -1,
					Field:  key,
					Reason: "unknown field",
				}
			}
		}
	}

	var rd ruleDocument
	if err := doc.decode(&rd); err != nil {
		return RuleDefinition{}, &MalformedDocumentError{Index: -1, Err: err}
	}
	return rd.definition()
}

func (r *Reader) tokenize(src io.Reader) ([]rawDocument, error) {
	if r.format == FormatJSON {
		return tokenizeJSON(src)
	}
	return tokenizeYAML(src)
}

func tokenizeYAML(src io.Reader) ([]rawDocument, error) {
	dec := yaml.NewDecoder(src)

	var docs []rawDocument
	for i := 0; ; i++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, &MalformedDocumentError{Index: i, Err: err}
		}

		root := &node
		if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
			root = root.Content[0]
		}
		if isEmptyYAMLDocument(root) {
			i--
			continue
		}
		if root.Kind != yaml.MappingNode {
			return nil, &MalformedDocumentError{
				Index: i,
				Err:   fmt.Errorf("line %d: expected a mapping, got %s", root.Line, yamlKind(root)),
			}
		}

		docs = append(docs, rawDocument{
			keys:   yamlKeys(root),
			decode: func(rd *ruleDocument) error { return root.Decode(rd) },
		})
	}
}

// yamlKeys lists the keys of a mapping, including those pulled in through
// merge keys ("<<") rather than the merge key itself
func yamlKeys(n *yaml.Node) []string {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}

	var keys []string
	switch n.Kind {
	case yaml.MappingNode:
		for j := 0; j+1 < len(n.Content); j += 2 {
			key, value := n.Content[j], n.Content[j+1]
			if key.Kind == yaml.ScalarNode && key.Value == "<<" && key.ShortTag() == "!!merge" {
				keys = append(keys, yamlKeys(value)...)
				continue
			}
			keys = append(keys, key.Value)
		}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			keys = append(keys, yamlKeys(item)...)
		}
	}
	return keys
}

// isEmptyYAMLDocument matches a bare "---" separator with nothing after it
func isEmptyYAMLDocument(n *yaml.Node) bool {
	switch n.Kind {
	case 0:
		return true
	case yaml.DocumentNode:
		return len(n.Content) == 0
	case yaml.ScalarNode:
		return n.Tag == "!!null" && n.Value == "" && n.Style == 0
	}
	return false
}

func yamlKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return "null"
		}
		return "a scalar"
	case yaml.AliasNode:
		return "an alias"
	default:
		return "an empty document"
	}
}

// tokenizeJSON accepts a top-level array of rule objects or a single object
func tokenizeJSON(src io.Reader) ([]rawDocument, error) {
	br := bufio.NewReader(src)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &MalformedDocumentError{Index: -1, Err: err}
	}

	dec := json.NewDecoder(br)
	fromArray := first == '['
	var elements []json.RawMessage
	switch first {
	case '[':
		err = dec.Decode(&elements)
	case '{':
		var single json.RawMessage
		err = dec.Decode(&single)
		elements = []json.RawMessage{single}
	default:
		err = fmt.Errorf("expected an object or an array of objects, got %q", first)
	}
	if err != nil {
		return nil, &MalformedDocumentError{Index: -1, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &MalformedDocumentError{Index: -1, Err: errors.New("unexpected data after top-level value")}
	}

	docs := make([]rawDocument, 0, len(elements))
	for i, raw := range elements {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, &MalformedDocumentError{Index: i, Err: fmt.Errorf("expected an object, got %s", trimmed)}
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, &MalformedDocumentError{Index: i, Err: err}
		}
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}

		docs = append(docs, rawDocument{
			keys:      keys,
			fromArray: fromArray,
			decode:    func(rd *ruleDocument) error { return json.Unmarshal(trimmed, rd) },
		})
	}
	return docs, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
