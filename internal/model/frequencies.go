package model

import (
	"fmt"

	"github.com/vk/beastgen/internal/xmltree"
)

// applyFrequencyMode rewrites a model fragment's frequencies parameter for
// the requested treatment. The template convention is that the parameter is
// declared with id "frequencies" inside a frequencyModel block; fixed and
// estimated frequencies carry explicit initial values, while empirical
// frequencies drop the values, forcing them to be measured from the source
// alignment the binder wires in once the alignment block exists.
func applyFrequencyMode(doc *xmltree.Document, mode Frequencies) error {
	param := doc.FindByID("frequencies")
	if param == nil {
		return fmt.Errorf("no parameter with id \"frequencies\" declared")
	}
	freqModel := doc.FindByID("frequencyModel")
	if freqModel == nil {
		return fmt.Errorf("no frequencyModel block declared")
	}

	switch mode {
	case FrequenciesEqual, FrequenciesEstimated:
		param.SetAttr("value", "0.25 0.25 0.25 0.25")
		param.RemoveAttr("dimension")
		if alignment := freqModel.Child("alignment"); alignment != nil {
			freqModel.RemoveChild(alignment)
		}
	case FrequenciesEmpirical:
		param.RemoveAttr("value")
		param.SetAttr("dimension", "4")
		if alignment := freqModel.Child("alignment"); alignment != nil {
			freqModel.RemoveChild(alignment)
		}
	default:
		return fmt.Errorf("invalid frequencies mode %q", mode)
	}

	// Fixed frequencies must stay fixed: drop any operator moving the
	// parameter and any prior over it that the fragment declares.
	if mode != FrequenciesEstimated {
		if operators := doc.FindByID("operators"); operators != nil {
			removeChildrenReferencing(operators, "frequencies")
		}
		if prior := doc.FindByID("prior"); prior != nil {
			removeChildrenReferencing(prior, "frequencies")
		}
	}
	return nil
}

// removeChildrenReferencing drops every direct child of container that
// references id anywhere beneath it.
func removeChildrenReferencing(container *xmltree.Element, id string) {
	children := append([]*xmltree.Element(nil), container.Children...)
	for _, child := range children {
		refs := false
		child.Walk(func(el *xmltree.Element) bool {
			if el.Ref() == id {
				refs = true
				return false
			}
			return true
		})
		if refs {
			container.RemoveChild(child)
		}
	}
}
