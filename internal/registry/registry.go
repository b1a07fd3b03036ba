package registry

import (
	"fmt"
	"strconv"

	"github.com/vk/beastgen/internal/xmltree"
)

// DuplicateIdentifierError reports two non-equivalent declarations of the
// same identifier.
type DuplicateIdentifierError struct {
	ID   string
	Path string
}

// Error implements the error interface.
func (e *DuplicateIdentifierError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("duplicate identifier %q (declared at %s)", e.ID, e.Path)
	}
	return fmt.Sprintf("duplicate identifier %q", e.ID)
}

// UnknownIdentifierError reports a lookup of an identifier that was never
// registered.
type UnknownIdentifierError struct {
	ID string
}

// Error implements the error interface.
func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown identifier %q", e.ID)
}

// Registry is a non-owning index from identifier to the element declaring
// it. Elements own their id attribute; the registry only mirrors it.
type Registry struct {
	owners map[string]*xmltree.Element
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{owners: make(map[string]*xmltree.Element)}
}

// FromDocument builds a registry holding every id declared in doc. A
// document with two declarations of the same id fails with
// *DuplicateIdentifierError.
func FromDocument(doc *xmltree.Document) (*Registry, error) {
	reg := New()
	var regErr error
	doc.Root.Walk(func(el *xmltree.Element) bool {
		id := el.ID()
		if id == "" {
			return true
		}
		if reg.Has(id) {
			regErr = &DuplicateIdentifierError{ID: id, Path: doc.PathOf(el)}
			return false
		}
		reg.owners[id] = el
		return true
	})
	if regErr != nil {
		return nil, regErr
	}
	return reg, nil
}

// Register records el as the owner of id. Registering an id twice fails with
// *DuplicateIdentifierError, even for the same element.
func (r *Registry) Register(id string, el *xmltree.Element) error {
	if id == "" {
		return fmt.Errorf("cannot register an empty identifier")
	}
	if _, exists := r.owners[id]; exists {
		return &DuplicateIdentifierError{ID: id}
	}
	r.owners[id] = el
	return nil
}

// Lookup returns the element owning id, failing with
// *UnknownIdentifierError if id was never registered.
func (r *Registry) Lookup(id string) (*xmltree.Element, error) {
	el, ok := r.owners[id]
	if !ok {
		return nil, &UnknownIdentifierError{ID: id}
	}
	return el, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.owners[id]
	return ok
}

// Release removes id from the index, for use when its owning element is
// removed from the document. Releasing an unknown id fails with
// *UnknownIdentifierError.
func (r *Registry) Release(id string) error {
	if _, ok := r.owners[id]; !ok {
		return &UnknownIdentifierError{ID: id}
	}
	delete(r.owners, id)
	return nil
}

// AllocateUnique returns a collision-free identifier derived from base by
// appending the smallest numeric suffix starting at 2 (base, base2, base3,
// ...), registers it to el and returns it. The derivation is deterministic:
// the same registry state and base always yield the same name.
func (r *Registry) AllocateUnique(base string, el *xmltree.Element) string {
	candidate := base
	for n := 2; r.Has(candidate); n++ {
		candidate = base + strconv.Itoa(n)
	}
	// Cannot collide: the loop only exits on a free name.
	_ = r.Register(candidate, el)
	return candidate
}

// Rename moves the registration of oldID to newID without touching the
// document; the resolver is responsible for rewriting the id and idref
// attributes. It fails with *UnknownIdentifierError if oldID is not
// registered and *DuplicateIdentifierError if newID already is.
func (r *Registry) Rename(oldID, newID string) error {
	el, ok := r.owners[oldID]
	if !ok {
		return &UnknownIdentifierError{ID: oldID}
	}
	if _, taken := r.owners[newID]; taken {
		return &DuplicateIdentifierError{ID: newID}
	}
	delete(r.owners, oldID)
	r.owners[newID] = el
	return nil
}

// Len returns the number of registered identifiers.
func (r *Registry) Len() int { return len(r.owners) }
