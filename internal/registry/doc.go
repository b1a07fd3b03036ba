// Package registry tracks every element identifier declared in an assembling
// document.
//
// The Registry maps an identifier string to the element that owns it. It is
// the single source of truth for "is this id already used" while fragments
// are being merged: the merger consults it before inserting declarations, the
// resolver updates it on renames, and unique-name allocation goes through it
// so that two fragments can never silently claim the same identifier.
//
// A Registry belongs to exactly one assembly run and one target document; it
// is never shared across runs.
package registry
