// Package resolver keeps id/idref cross-references sound.
//
// Template fragments are authored independently and reuse generic names
// (frequencies, siteModel, kappa), so the merger regularly has to rename a
// declaration. Renames must touch both sides of every reference at once,
// and nothing but this package edits idref attributes: the merger asks for a
// rename, the resolver performs it against the document and the registry in
// one step.
package resolver

import (
	"fmt"

	"github.com/vk/beastgen/internal/registry"
	"github.com/vk/beastgen/internal/xmltree"
)

// DanglingReferenceError reports an idref with no matching id declaration in
// the document.
type DanglingReferenceError struct {
	Ref  string
	Path string
}

// Error implements the error interface.
func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling reference %q at %s", e.Ref, e.Path)
}

// Rename changes the identifier of the element owning oldID to newID and
// rewrites every idref="oldID" in the document to match. The registry index
// is updated in the same step. All precondition checks run before any
// mutation, so a failed rename leaves the document untouched.
func Rename(doc *xmltree.Document, reg *registry.Registry, oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	owner, err := reg.Lookup(oldID)
	if err != nil {
		return err
	}
	if err := reg.Rename(oldID, newID); err != nil {
		return err
	}

	owner.SetAttr("id", newID)
	doc.Root.Walk(func(el *xmltree.Element) bool {
		if el.Ref() == oldID {
			el.SetAttr("idref", newID)
		}
		return true
	})
	return nil
}

// RenameInFragment rewrites id and idref attributes inside a fragment that
// has not been merged yet, where no registry exists. Used by the merger to
// retarget a fragment's internal references before insertion.
func RenameInFragment(root *xmltree.Element, oldID, newID string) {
	root.Walk(func(el *xmltree.Element) bool {
		if el.ID() == oldID {
			el.SetAttr("id", newID)
		}
		if el.Ref() == oldID {
			el.SetAttr("idref", newID)
		}
		return true
	})
}

// Validate walks the whole document and confirms that every idref resolves
// to exactly one declared id. Duplicate declarations surface as
// *registry.DuplicateIdentifierError, unresolved references as
// *DanglingReferenceError carrying the referencing element's path. The first
// problem found aborts the walk; nothing is ever dropped or defaulted.
func Validate(doc *xmltree.Document) error {
	declared := make(map[string]struct{})
	var dup *registry.DuplicateIdentifierError
	doc.Root.Walk(func(el *xmltree.Element) bool {
		id := el.ID()
		if id == "" {
			return true
		}
		if _, seen := declared[id]; seen {
			dup = &registry.DuplicateIdentifierError{ID: id, Path: doc.PathOf(el)}
			return false
		}
		declared[id] = struct{}{}
		return true
	})
	if dup != nil {
		return dup
	}

	var dangling *DanglingReferenceError
	doc.Root.Walk(func(el *xmltree.Element) bool {
		ref := el.Ref()
		if ref == "" {
			return true
		}
		if _, ok := declared[ref]; !ok {
			dangling = &DanglingReferenceError{Ref: ref, Path: doc.PathOf(el)}
			return false
		}
		return true
	})
	if dangling != nil {
		return dangling
	}
	return nil
}
