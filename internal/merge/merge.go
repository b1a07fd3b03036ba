// Package merge combines independently authored template fragments into one
// coherent document.
//
// Each fragment is a self-consistent island of elements and id/idref
// references. Merging reconciles identifiers first (equivalent
// redeclarations collapse onto the element already in the target,
// non-equivalent collisions are renamed), then unions mergeable containers
// (operators, priors, logs, the MCMC wrapper) instead of duplicating them,
// and finally revalidates every reference in the grown document.
package merge

import (
	"context"
	"fmt"

	"github.com/vk/beastgen/internal/ctxlog"
	"github.com/vk/beastgen/internal/registry"
	"github.com/vk/beastgen/internal/resolver"
	"github.com/vk/beastgen/internal/xmltree"
)

// rootTag is the fixed outer element of both targets and fragments.
const rootTag = "beast"

// StructuralMismatchError reports an element that should merge into a
// container by role but has an incompatible shape.
type StructuralMismatchError struct {
	Path   string
	Detail string
}

// Error implements the error interface.
func (e *StructuralMismatchError) Error() string {
	return fmt.Sprintf("structural mismatch at %s: %s", e.Path, e.Detail)
}

// RenamePolicy selects which side of a non-equivalent identifier collision
// is renamed. The choice is deliberately explicit rather than an accident of
// insertion order.
type RenamePolicy int

const (
	// RenameIncoming renames the fragment's declaration and leaves the
	// target untouched, so identifiers already referenced by earlier merges
	// stay stable. This is the default.
	RenameIncoming RenamePolicy = iota
	// RenameExisting renames the declaration already in the target and lets
	// the fragment keep its name.
	RenameExisting
)

// Options control a single Merge call.
type Options struct {
	// Policy picks the side to rename on a non-equivalent id collision.
	Policy RenamePolicy
	// Prefix, when non-empty, rewrites every fragment identifier outside
	// Protected to "Prefix.id" before reconciliation. This is how
	// per-partition copies of the same model family stay disjoint.
	Prefix string
	// Protected lists identifiers exempt from Prefix rewriting: shared
	// skeleton blocks (operators, mcmc, joint, prior, logs) and the
	// alignment name itself.
	Protected []string
	// Source names the fragment for error reporting.
	Source string
}

// Merge integrates fragment into doc. The fragment is consumed: its elements
// are moved into doc and must not be used afterwards. On error the target
// document's state is undefined and the caller must discard it.
func Merge(ctx context.Context, doc *xmltree.Document, reg *registry.Registry, fragment *xmltree.Document, opts Options) error {
	if err := mergeInternal(ctx, doc, reg, fragment, opts); err != nil {
		if opts.Source != "" {
			return fmt.Errorf("merging fragment %s: %w", opts.Source, err)
		}
		return err
	}
	return nil
}

func mergeInternal(ctx context.Context, doc *xmltree.Document, reg *registry.Registry, fragment *xmltree.Document, opts Options) error {
	logger := ctxlog.FromContext(ctx)

	if err := checkRoots(doc, fragment); err != nil {
		return err
	}

	if opts.Prefix != "" {
		applyPrefix(fragment, opts.Prefix, opts.Protected)
	}

	m := &merger{doc: doc, reg: reg, fragment: fragment, opts: opts}
	for _, child := range fragment.Root.Children {
		if err := m.reconcile(child, fragment.Root); err != nil {
			return err
		}
	}
	logger.Debug("identifiers reconciled",
		"source", opts.Source, "reused", m.reused, "renamed", m.renamed)

	if err := m.insertTopLevel(); err != nil {
		return err
	}

	if err := resolver.Validate(doc); err != nil {
		return err
	}
	logger.Debug("fragment merged", "source", opts.Source, "identifiers", reg.Len())
	return nil
}

func checkRoots(doc, fragment *xmltree.Document) error {
	if doc.Root == nil || doc.Root.Tag != rootTag {
		return &StructuralMismatchError{Path: "/", Detail: fmt.Sprintf("target document must have a <%s> root", rootTag)}
	}
	if fragment.Root == nil || fragment.Root.Tag != rootTag {
		return &StructuralMismatchError{Path: "/", Detail: fmt.Sprintf("fragment must have a <%s> root", rootTag)}
	}
	targetVersion := doc.Root.Attr("version")
	fragVersion := fragment.Root.Attr("version")
	if targetVersion != fragVersion {
		return &StructuralMismatchError{
			Path:   rootTag,
			Detail: fmt.Sprintf("version mismatch: target %q, fragment %q", targetVersion, fragVersion),
		}
	}
	return nil
}

// applyPrefix rewrites every identifier in the fragment to prefix.id,
// leaving protected identifiers alone. References to identifiers the
// fragment never declares (a companion fragment acting on another
// fragment's parameter) are prefixed too: under prefix isolation they are
// expected to resolve against the same partition's declarations, unless the
// target is protected as shared.
func applyPrefix(fragment *xmltree.Document, prefix string, protected []string) {
	exempt := make(map[string]struct{}, len(protected))
	for _, id := range protected {
		exempt[id] = struct{}{}
	}

	var ids []string
	renamed := make(map[string]struct{})
	fragment.Root.Walk(func(el *xmltree.Element) bool {
		if id := el.ID(); id != "" {
			if _, ok := exempt[id]; !ok {
				ids = append(ids, id)
				renamed[prefix+"."+id] = struct{}{}
			}
		}
		return true
	})
	for _, id := range ids {
		resolver.RenameInFragment(fragment.Root, id, prefix+"."+id)
	}

	fragment.Root.Walk(func(el *xmltree.Element) bool {
		ref := el.Ref()
		if ref == "" {
			return true
		}
		if _, ok := exempt[ref]; ok {
			return true
		}
		if _, ok := renamed[ref]; ok {
			return true
		}
		el.SetAttr("idref", prefix+"."+ref)
		return true
	})
}

type merger struct {
	doc      *xmltree.Document
	reg      *registry.Registry
	fragment *xmltree.Document
	opts     Options

	dropped map[*xmltree.Element]struct{}
	reused  int
	renamed int
}

// reconcile walks a fragment subtree and resolves every declared identifier
// against the registry: new ids are registered, equivalent redeclarations
// collapse onto the target's element, non-equivalent collisions are renamed
// per the configured policy.
func (m *merger) reconcile(el, parent *xmltree.Element) error {
	if RoleOf(el) != RoleDistinct {
		// A colliding container id means "union into that container", never
		// a rename; only a container new to the target registers its id.
		if id := el.ID(); id != "" && !m.reg.Has(id) {
			if err := m.reg.Register(id, el); err != nil {
				return err
			}
		}
		for _, child := range el.Children {
			if err := m.reconcile(child, el); err != nil {
				return err
			}
		}
		return nil
	}
	if id := el.ID(); id != "" {
		if m.reg.Has(id) {
			existing, err := m.reg.Lookup(id)
			if err != nil {
				return err
			}
			if existing.Equal(el) {
				m.reuse(el, parent, id)
				return nil // the whole subtree is dropped, do not descend
			}
			if err := m.renameCollision(el, id); err != nil {
				return err
			}
		} else {
			if err := m.reg.Register(id, el); err != nil {
				return err
			}
		}
	}
	for _, child := range el.Children {
		if err := m.reconcile(child, el); err != nil {
			return err
		}
	}
	return nil
}

// reuse drops an equivalent redeclaration in favour of the element already
// in the target. A top-level duplicate vanishes entirely; a nested one is
// replaced by an idref reference so its enclosing block stays well-formed.
func (m *merger) reuse(el, parent *xmltree.Element, id string) {
	m.reused++
	if parent == m.fragment.Root {
		if m.dropped == nil {
			m.dropped = make(map[*xmltree.Element]struct{})
		}
		m.dropped[el] = struct{}{}
		return
	}
	ref := xmltree.NewElement(el.Tag).SetAttr("idref", id)
	idx := parent.IndexOf(el)
	parent.RemoveChild(el)
	parent.InsertAt(idx, ref)
}

func (m *merger) renameCollision(el *xmltree.Element, id string) error {
	m.renamed++
	switch m.opts.Policy {
	case RenameIncoming:
		newID := m.reg.AllocateUnique(id, el)
		resolver.RenameInFragment(m.fragment.Root, id, newID)
		return nil
	case RenameExisting:
		existing, err := m.reg.Lookup(id)
		if err != nil {
			return err
		}
		newID := m.reg.AllocateUnique(id, existing)
		resolver.RenameInFragment(m.doc.Root, id, newID)
		if err := m.reg.Release(id); err != nil {
			return err
		}
		return m.reg.Register(id, el)
	default:
		return fmt.Errorf("unknown rename policy %d", m.opts.Policy)
	}
}

// insertTopLevel moves the fragment's top-level children into the target.
// Children preceding the fragment's <operators> block are inserted before
// the target's <operators> block so that model declarations stay ahead of
// the blocks that reference them; the rest are appended.
func (m *merger) insertTopLevel() error {
	target := m.doc.Root
	opsIdx := -1
	for i, c := range target.Children {
		if c.Tag == "operators" {
			opsIdx = i
			break
		}
	}

	beforeOps := true
	for _, fc := range m.fragment.Root.Children {
		if _, drop := m.dropped[fc]; drop {
			continue
		}
		if fc.Tag == "operators" {
			beforeOps = false
		}
		if RoleOf(fc) != RoleDistinct {
			match, err := m.findContainer(target, fc)
			if err != nil {
				return err
			}
			if match != nil {
				if err := m.mergeInto(match, fc); err != nil {
					return err
				}
				continue
			}
		}
		if beforeOps && opsIdx >= 0 {
			target.InsertAt(opsIdx, fc)
			opsIdx++
		} else {
			target.Append(fc)
		}
	}
	return nil
}

// mergeInto unions the children of a fragment container into the matching
// target container, recursing through nested containers (joint inside mcmc,
// prior inside joint).
func (m *merger) mergeInto(target, frag *xmltree.Element) error {
	for _, fc := range frag.Children {
		if _, drop := m.dropped[fc]; drop {
			continue
		}
		if RoleOf(fc) != RoleDistinct {
			match, err := m.findContainer(target, fc)
			if err != nil {
				return err
			}
			if match != nil {
				if err := m.mergeInto(match, fc); err != nil {
					return err
				}
				continue
			}
		}
		m.appendUnioned(target, fc)
	}
	return nil
}

// appendUnioned appends a fragment child to a container, skipping
// reference-only entries the container already holds: a parameter shared by
// several fragments is logged and operated on once, not once per fragment.
func (m *merger) appendUnioned(target, fc *xmltree.Element) {
	if fc.Ref() != "" && len(fc.Children) == 0 {
		for _, tc := range target.Children {
			if tc.Equal(fc) {
				return
			}
		}
	}
	target.Append(fc)
}

// findContainer locates the target-side container an incoming container
// merges into: by id when the incoming element declares one, by tag
// otherwise. An id match with a different tag is a structural mismatch.
func (m *merger) findContainer(target, fc *xmltree.Element) (*xmltree.Element, error) {
	if id := fc.ID(); id != "" {
		for _, tc := range target.Children {
			if tc.ID() == id {
				if tc.Tag != fc.Tag {
					return nil, &StructuralMismatchError{
						Path:   m.doc.PathOf(tc),
						Detail: fmt.Sprintf("container %q is a <%s> in the target but a <%s> in the fragment", id, tc.Tag, fc.Tag),
					}
				}
				return tc, nil
			}
		}
		return nil, nil
	}
	for _, tc := range target.Children {
		if tc.Tag == fc.Tag {
			return tc, nil
		}
	}
	return nil, nil
}
