package secrets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

const (
	secretKey        = "_secret"
	secretStorageKey = "_secret_storage_id"
)

// Kind is the variant of a Node.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
	KindSecretRef
)

// SecretReference points at a secret payload held by a secret store.
type SecretReference struct {
	Coordinate string
	StorageID  string
}

// Node is a configuration tree in which secret placeholders are a distinct
// variant rather than ordinary objects.
type Node struct {
	kind    Kind
	boolean bool
	number  json.Number
	str     string
	fields  map[string]*Node
	items   []*Node
	ref     SecretReference
}

func (n *Node) Kind() Kind { return n.kind }

// Parse decodes raw JSON into a Node. An object carrying `_secret` must be a
// well-formed reference or parsing fails with ErrMalformedReference.
func Parse(raw json.RawMessage) (*Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return &Node{kind: KindNull}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrMalformedReference, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: invalid json: trailing data after top-level value", ErrMalformedReference)
	}
	return build(v)
}

func build(v any) (*Node, error) {
	switch t := v.(type) {
	case nil:
		return &Node{kind: KindNull}, nil
	case bool:
		return &Node{kind: KindBool, boolean: t}, nil
	case json.Number:
		return &Node{kind: KindNumber, number: t}, nil
	case string:
		return &Node{kind: KindString, str: t}, nil
	case []any:
		n := &Node{kind: KindArray, items: make([]*Node, 0, len(t))}
		for _, item := range t {
			child, err := build(item)
			if err != nil {
				return nil, err
			}
			n.items = append(n.items, child)
		}
		return n, nil
	case map[string]any:
		if _, ok := t[secretKey]; ok {
			return buildReference(t)
		}
		n := &Node{kind: KindObject, fields: make(map[string]*Node, len(t))}
		for k, item := range t {
			child, err := build(item)
			if err != nil {
				return nil, err
			}
			n.fields[k] = child
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: unexpected json value %T", ErrMalformedReference, v)
}

func buildReference(obj map[string]any) (*Node, error) {
	coordinate, ok := obj[secretKey].(string)
	if !ok || coordinate == "" {
		return nil, fmt.Errorf("%w: %s must be a non-empty string", ErrMalformedReference, secretKey)
	}
	ref := SecretReference{Coordinate: coordinate}
	for k, v := range obj {
		switch k {
		case secretKey:
		case secretStorageKey:
			id, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a string", ErrMalformedReference, secretStorageKey)
			}
			ref.StorageID = id
		default:
			return nil, fmt.Errorf("%w: unexpected key %q next to %s", ErrMalformedReference, k, secretKey)
		}
	}
	return &Node{kind: KindSecretRef, ref: ref}, nil
}

// References returns the distinct references in the tree in a stable order.
func (n *Node) References() []SecretReference {
	seen := make(map[string]bool)
	var out []SecretReference
	n.walk(func(ref SecretReference) {
		if !seen[ref.Coordinate] {
			seen[ref.Coordinate] = true
			out = append(out, ref)
		}
	})
	return out
}

func (n *Node) walk(visit func(SecretReference)) {
	switch n.kind {
	case KindSecretRef:
		visit(n.ref)
	case KindArray:
		for _, item := range n.items {
			item.walk(visit)
		}
	case KindObject:
		for _, k := range sortedKeys(n.fields) {
			n.fields[k].walk(visit)
		}
	}
}

// Substitute returns a new tree with every reference replaced by its value.
// A reference without a value fails the whole call; n is left untouched.
func (n *Node) Substitute(values map[string]string) (*Node, error) {
	switch n.kind {
	case KindSecretRef:
		v, ok := values[n.ref.Coordinate]
		if !ok {
			return nil, &SecretResolutionError{Coordinate: n.ref.Coordinate, Err: ErrSecretNotFound}
		}
		return &Node{kind: KindString, str: v}, nil
	case KindArray:
		out := &Node{kind: KindArray, items: make([]*Node, len(n.items))}
		for i, item := range n.items {
			child, err := item.Substitute(values)
			if err != nil {
				return nil, err
			}
			out.items[i] = child
		}
		return out, nil
	case KindObject:
		out := &Node{kind: KindObject, fields: make(map[string]*Node, len(n.fields))}
		for k, item := range n.fields {
			child, err := item.Substitute(values)
			if err != nil {
				return nil, err
			}
			out.fields[k] = child
		}
		return out, nil
	default:
		c := *n
		return &c, nil
	}
}

// Render encodes the tree as JSON. References render as their placeholder form.
func (n *Node) Render() (json.RawMessage, error) {
	return json.Marshal(n.value())
}

func (n *Node) value() any {
	switch n.kind {
	case KindBool:
		return n.boolean
	case KindNumber:
		return n.number
	case KindString:
		return n.str
	case KindArray:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			out[i] = item.value()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(n.fields))
		for k, item := range n.fields {
			out[k] = item.value()
		}
		return out
	case KindSecretRef:
		out := map[string]any{secretKey: n.ref.Coordinate}
		if n.ref.StorageID != "" {
			out[secretStorageKey] = n.ref.StorageID
		}
		return out
	}
	return nil
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasReferences reports whether raw still contains a secret placeholder.
// Malformed placeholders count as present.
func HasReferences(raw json.RawMessage) bool {
	n, err := Parse(raw)
	if err != nil {
		return bytes.Contains(raw, []byte(`"`+secretKey+`"`))
	}
	return len(n.References()) > 0
}
