// Package xmltree provides the mutable, order-preserving element tree that
// every other stage of the assembly engine operates on.
//
// The stdlib encoding/xml package can tokenize a document but cannot hold one
// as an editable tree with stable attribute order, so the tree itself lives
// here. Attribute order matters: the serialized output must be byte-identical
// across runs for a fixed sequence of edits.
package xmltree

// Attr is a single XML attribute. Attributes are kept as an ordered slice,
// not a map, so that serialization reproduces the source order.
type Attr struct {
	Name  string
	Value string
}

// Element is one node of a parsed document: a tag, its attributes, its child
// elements and any character data. Character data is stored after the child
// elements, which matches the one place BEAST XML uses mixed content (the
// sequence string following a <taxon idref=".."/> child).
type Element struct {
	Tag      string
	Attrs    []Attr
	Children []*Element
	Text     string
}

// Document is a complete XML document with a single root element.
type Document struct {
	Root *Element
}

// NewElement returns an element with the given tag and no attributes.
func NewElement(tag string) *Element {
	return &Element{Tag: tag}
}

// Attr returns the value of the named attribute, or "" if it is absent.
func (e *Element) Attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// HasAttr reports whether the named attribute is present.
func (e *Element) HasAttr(name string) bool {
	for _, a := range e.Attrs {
		if a.Name == name {
			return true
		}
	}
	return false
}

// SetAttr sets the named attribute, replacing an existing value in place so
// that attribute order is preserved. A new attribute is appended.
func (e *Element) SetAttr(name, value string) *Element {
	for i, a := range e.Attrs {
		if a.Name == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
	return e
}

// RemoveAttr deletes the named attribute if present.
func (e *Element) RemoveAttr(name string) {
	for i, a := range e.Attrs {
		if a.Name == name {
			e.Attrs = append(e.Attrs[:i], e.Attrs[i+1:]...)
			return
		}
	}
}

// ID returns the element's id attribute, or "".
func (e *Element) ID() string { return e.Attr("id") }

// Ref returns the element's idref attribute, or "".
func (e *Element) Ref() string { return e.Attr("idref") }

// Append adds children to the end of the element's child list.
func (e *Element) Append(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// InsertAt inserts a child at the given index. An index at or beyond the
// current length appends.
func (e *Element) InsertAt(index int, child *Element) {
	if index >= len(e.Children) {
		e.Children = append(e.Children, child)
		return
	}
	if index < 0 {
		index = 0
	}
	e.Children = append(e.Children[:index], append([]*Element{child}, e.Children[index:]...)...)
}

// RemoveChild removes the first occurrence of child (by identity) and reports
// whether it was found.
func (e *Element) RemoveChild(child *Element) bool {
	for i, c := range e.Children {
		if c == child {
			e.Children = append(e.Children[:i], e.Children[i+1:]...)
			return true
		}
	}
	return false
}

// IndexOf returns the position of child in the element's child list, or -1.
func (e *Element) IndexOf(child *Element) int {
	for i, c := range e.Children {
		if c == child {
			return i
		}
	}
	return -1
}

// Child returns the first direct child with the given tag, or nil.
func (e *Element) Child(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// ChildrenByTag returns all direct children with the given tag.
func (e *Element) ChildrenByTag(tag string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// Descend follows a path of tags from the element, taking the first matching
// child at every step. It returns nil if any step is missing.
func (e *Element) Descend(tags ...string) *Element {
	cur := e
	for _, tag := range tags {
		cur = cur.Child(tag)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Walk visits the element and every descendant in document order. Returning
// false from fn stops the walk.
func (e *Element) Walk(fn func(el *Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, c := range e.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// FindByID returns the first element in the subtree declaring the given id,
// or nil.
func (e *Element) FindByID(id string) *Element {
	var found *Element
	e.Walk(func(el *Element) bool {
		if el.ID() == id {
			found = el
			return false
		}
		return true
	})
	return found
}

// Clone returns a deep copy of the element sharing no state with the
// original.
func (e *Element) Clone() *Element {
	out := &Element{
		Tag:  e.Tag,
		Text: e.Text,
	}
	if len(e.Attrs) > 0 {
		out.Attrs = make([]Attr, len(e.Attrs))
		copy(out.Attrs, e.Attrs)
	}
	for _, c := range e.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

// Equal reports structural equivalence: same tag, same attribute set
// (order-insensitive, since independently authored fragments order
// attributes differently), same text and pairwise-equal children. This is
// the judgement the merger uses to decide that two declarations of the same
// id are one shared element rather than a collision.
func (e *Element) Equal(other *Element) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.Tag != other.Tag || e.Text != other.Text {
		return false
	}
	if len(e.Attrs) != len(other.Attrs) || len(e.Children) != len(other.Children) {
		return false
	}
	for _, a := range e.Attrs {
		if !other.HasAttr(a.Name) || other.Attr(a.Name) != a.Value {
			return false
		}
	}
	for i, c := range e.Children {
		if !c.Equal(other.Children[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d.Root == nil {
		return &Document{}
	}
	return &Document{Root: d.Root.Clone()}
}

// FindByID returns the element declaring the given id anywhere in the
// document, or nil.
func (d *Document) FindByID(id string) *Element {
	if d.Root == nil {
		return nil
	}
	return d.Root.FindByID(id)
}
