package xmltree

import (
	"fmt"
	"strings"
)

// PathOf returns a human-readable path from the document root to el, used in
// error messages: tags joined by '/', with the id attribute appended where
// one is declared, e.g. beast/operators/scaleOperator[@id="kappa.scale"].
// It returns "" if el is not part of the document.
func (d *Document) PathOf(el *Element) string {
	if d.Root == nil {
		return ""
	}
	var segments []string
	if findPath(d.Root, el, &segments) {
		return strings.Join(segments, "/")
	}
	return ""
}

func findPath(cur, target *Element, segments *[]string) bool {
	*segments = append(*segments, segment(cur))
	if cur == target {
		return true
	}
	for _, c := range cur.Children {
		if findPath(c, target, segments) {
			return true
		}
	}
	*segments = (*segments)[:len(*segments)-1]
	return false
}

func segment(el *Element) string {
	if id := el.ID(); id != "" {
		return fmt.Sprintf("%s[@id=%q]", el.Tag, id)
	}
	if ref := el.Ref(); ref != "" {
		return fmt.Sprintf("%s[@idref=%q]", el.Tag, ref)
	}
	return el.Tag
}
