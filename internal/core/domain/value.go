package domain

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindString is a byte-string value.
	KindString Kind = iota + 1
	// KindList is an ordered list of byte strings.
	KindList
)

// String returns the type name as reported to clients.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	default:
		return "none"
	}
}

// Value is a tagged union of a string or a list.
//
// Lists are stored front-to-back in items[head:]. The slots before head are
// spare room for head inserts, so both LPUSH and RPUSH are amortized O(1).
// The zero Value is not valid; use NewString or NewList.
type Value struct {
	kind  Kind
	str   []byte
	items [][]byte
	head  int
}

// NewString returns a string value holding b. The slice is retained.
func NewString(b []byte) *Value {
	if b == nil {
		b = []byte{}
	}
	return &Value{kind: KindString, str: b}
}

// NewList returns a list value holding items in front-to-back order.
func NewList(items ...[]byte) *Value {
	v := &Value{kind: KindList}
	if len(items) > 0 {
		v.items = append(make([][]byte, 0, len(items)), items...)
	}
	return v
}

// Kind returns the variant held by v.
func (v *Value) Kind() Kind {
	return v.kind
}

// IsString reports whether v holds a string.
func (v *Value) IsString() bool {
	return v.kind == KindString
}

// IsList reports whether v holds a list.
func (v *Value) IsList() bool {
	return v.kind == KindList
}

// Bytes returns the string payload, or nil for lists.
func (v *Value) Bytes() []byte {
	if v.kind != KindString {
		return nil
	}
	return v.str
}

// Items returns the list elements front-to-back, or nil for strings.
// The returned slice must not be modified.
func (v *Value) Items() [][]byte {
	if v.kind != KindList {
		return nil
	}
	return v.items[v.head:]
}

// Len returns the number of list elements, or the string length.
func (v *Value) Len() int {
	if v.kind == KindList {
		return len(v.items) - v.head
	}
	return len(v.str)
}

// PushFront inserts each item at the head in argument order, so the last
// argument ends up first. This is LPUSH ordering.
func (v *Value) PushFront(items ...[]byte) int {
	if v.head < len(items) {
		v.growFront(len(items))
	}
	for _, it := range items {
		v.head--
		v.items[v.head] = it
	}
	return v.Len()
}

// growFront reallocates so that at least need free slots precede the
// first element. The spare room doubles with the list length.
func (v *Value) growFront(need int) {
	n := v.Len()
	room := n
	if room < need {
		room = need
	}
	if room < 4 {
		room = 4
	}
	grown := make([][]byte, room+n, room+n+(cap(v.items)-len(v.items)))
	copy(grown[room:], v.items[v.head:])
	v.items = grown
	v.head = room
}

// PushBack appends items at the tail preserving argument order (RPUSH).
func (v *Value) PushBack(items ...[]byte) int {
	v.items = append(v.items, items...)
	return v.Len()
}

// Equal reports whether v and o hold the same variant and payload.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.kind != o.kind {
		return false
	}
	if v.kind == KindString {
		return string(v.str) == string(o.str)
	}
	a, b := v.Items(), o.Items()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if string(a[i]) != string(b[i]) {
			return false
		}
	}
	return true
}
