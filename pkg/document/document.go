// Package document models free-form structured payloads as an explicit tagged
// union instead of map[string]any.
//
// A Document is parsed once from JSON, keeps object members in submission order
// and can be written back byte-for-byte equivalent (modulo whitespace). Values
// are reached with Lookup, which fails with ErrPathNotFound or ErrNotObject
// instead of panicking on a bad type assertion.
package document

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrPathNotFound = errors.New("path not found")
	ErrNotObject    = errors.New("not an object")
	ErrTooDeep      = errors.New("document: exceeded max nesting depth")
)

// MaxDepth is the deepest array/object nesting Parse accepts, the same limit
// encoding/json applies.
const MaxDepth = 10000

// Kind is the type tag of a Node.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Member is a single key/value pair of an Object node.
type Member struct {
	Key   string
	Value Node
}

// Node is one value of a document. The zero Node is null.
type Node struct {
	kind    Kind
	boolean bool
	text    string // string value or number literal
	items   []Node
	members []Member
}

func NullNode() Node                { return Node{} }
func BoolNode(b bool) Node          { return Node{kind: Bool, boolean: b} }
func StringNode(s string) Node      { return Node{kind: String, text: s} }
func NumberNode(n json.Number) Node { return Node{kind: Number, text: string(n)} }
func ArrayNode(items ...Node) Node  { return Node{kind: Array, items: items} }

// ObjectNode builds an object; a repeated key replaces the earlier value in place.
func ObjectNode(members ...Member) Node {
	n := Node{kind: Object}
	for _, m := range members {
		n.set(m.Key, m.Value)
	}
	return n
}

func (n Node) Kind() Kind { return n.kind }

// AsString returns the value of a String node.
func (n Node) AsString() (string, bool) {
	if n.kind != String {
		return "", false
	}
	return n.text, true
}

// AsBool returns the value of a Bool node.
func (n Node) AsBool() (bool, bool) {
	if n.kind != Bool {
		return false, false
	}
	return n.boolean, true
}

// AsNumber returns the literal of a Number node.
func (n Node) AsNumber() (json.Number, bool) {
	if n.kind != Number {
		return "", false
	}
	return json.Number(n.text), true
}

// Items returns the elements of an Array node.
func (n Node) Items() []Node {
	if n.kind != Array {
		return nil
	}
	return n.items
}

// Members returns the members of an Object node in insertion order.
func (n Node) Members() []Member {
	if n.kind != Object {
		return nil
	}
	return n.members
}

// Get returns the member value for key of an Object node.
func (n Node) Get(key string) (Node, bool) {
	if n.kind != Object {
		return Node{}, false
	}
	for _, m := range n.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Node{}, false
}

// Text renders a scalar the way SQL text extraction does: strings unquoted,
// numbers and booleans as JSON literals, containers as compact JSON.
// Null yields ok=false.
func (n Node) Text() (string, bool) {
	switch n.kind {
	case Null:
		return "", false
	case String, Number:
		return n.text, true
	case Bool:
		if n.boolean {
			return "true", true
		}
		return "false", true
	default:
		b, err := n.MarshalJSON()
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func (n *Node) set(key string, value Node) {
	for i := range n.members {
		if n.members[i].Key == key {
			n.members[i].Value = value
			return
		}
	}
	n.members = append(n.members, Member{Key: key, Value: value})
}

// MarshalJSON implements json.Marshaler.
func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	node, err := parse(data)
	if err != nil {
		return err
	}
	*n = node
	return nil
}

func (n Node) encode(buf *bytes.Buffer) error {
	switch n.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if n.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(n.text)
	case String:
		return encodeString(buf, n.text)
	case Array:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range n.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, m.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("document: unknown node kind %d", n.kind)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// Document is a parsed structured payload.
type Document struct {
	root Node
}

// New wraps a root node.
func New(root Node) Document {
	return Document{root: root}
}

// Parse decodes JSON into a Document. Trailing data after the first value is rejected.
func Parse(data []byte) (Document, error) {
	root, err := parse(data)
	if err != nil {
		return Document{}, err
	}
	return Document{root: root}, nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) Document {
	doc, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return doc
}

func (d Document) Root() Node { return d.root }

// Lookup walks object keys from the root.
func (d Document) Lookup(path ...string) (Node, error) {
	cur := d.root
	for i, key := range path {
		if cur.kind != Object {
			return Node{}, fmt.Errorf("%w: %s", ErrNotObject, strings.Join(path[:i], "."))
		}
		next, ok := cur.Get(key)
		if !ok {
			return Node{}, fmt.Errorf("%w: %s", ErrPathNotFound, strings.Join(path[:i+1], "."))
		}
		cur = next
	}
	return cur, nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	return d.root.MarshalJSON()
}

func (d *Document) UnmarshalJSON(data []byte) error {
	return d.root.UnmarshalJSON(data)
}

// Value implements driver.Valuer. The JSON text is passed as a string so that
// JSONB columns accept it with text-protocol drivers.
func (d Document) Value() (driver.Value, error) {
	b, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (d *Document) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = Document{}
		return nil
	case []byte:
		return d.UnmarshalJSON(v)
	case string:
		return d.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("document: unsupported scan type %T", value)
	}
}

func parse(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	node, err := decodeNode(dec, 0)
	if err != nil {
		return Node{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Node{}, errors.New("document: unexpected data after top-level value")
	}
	return node, nil
}

// decodeNode reads one value; depth is the number of enclosing containers.
func decodeNode(dec *json.Decoder, depth int) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return Node{}, io.ErrUnexpectedEOF
		}
		return Node{}, err
	}
	switch v := tok.(type) {
	case nil:
		return NullNode(), nil
	case bool:
		return BoolNode(v), nil
	case json.Number:
		return NumberNode(v), nil
	case string:
		return StringNode(v), nil
	case json.Delim:
		if (v == '[' || v == '{') && depth >= MaxDepth {
			return Node{}, ErrTooDeep
		}
		switch v {
		case '[':
			arr := Node{kind: Array, items: []Node{}}
			for dec.More() {
				item, err := decodeNode(dec, depth+1)
				if err != nil {
					return Node{}, err
				}
				arr.items = append(arr.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return arr, nil
		case '{':
			obj := Node{kind: Object}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Node{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Node{}, fmt.Errorf("document: unexpected object key %v", keyTok)
				}
				value, err := decodeNode(dec, depth+1)
				if err != nil {
					return Node{}, err
				}
				obj.set(key, value)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return obj, nil
		}
	}
	return Node{}, fmt.Errorf("document: unexpected token %v", tok)
}
