package merge

import "github.com/vk/beastgen/internal/xmltree"

// Role classifies an element for the merger: either a mergeable container
// whose children from two fragments are unioned into one block, or a
// distinct element that is inserted as a new sibling. The mapping from tag
// to role is the single place this knowledge lives; adding a new mergeable
// block type is a one-line change here.
type Role int

const (
	// RoleDistinct marks elements that are never merged structurally. A
	// colliding id on a distinct element is resolved by equivalence reuse or
	// renaming, not by unioning children.
	RoleDistinct Role = iota
	// RoleOperators is the top-level <operators> list.
	RoleOperators
	// RoleMCMC is the <mcmc> wrapper; its children are merged recursively.
	RoleMCMC
	// RoleJoint is the <joint> wrapper inside <mcmc>.
	RoleJoint
	// RolePrior is the prior list inside <joint>.
	RolePrior
	// RoleLikelihood is the likelihood list inside <joint>.
	RoleLikelihood
	// RoleLog covers <log> and <logTree> blocks, matched by id so that the
	// file log and the screen log stay separate.
	RoleLog
	// RoleSiteModel lets rate-variation modifier fragments (gamma shape,
	// proportion of invariant sites) union into the model's siteModel
	// block. Matched by id, so per-partition site models stay distinct.
	RoleSiteModel
)

var containerRoles = map[string]Role{
	"operators":  RoleOperators,
	"mcmc":       RoleMCMC,
	"joint":      RoleJoint,
	"prior":      RolePrior,
	"likelihood": RoleLikelihood,
	"log":        RoleLog,
	"logTree":    RoleLog,
	"siteModel":  RoleSiteModel,
}

// RoleOf returns the role of an element, RoleDistinct unless its tag is a
// recognized mergeable container.
func RoleOf(el *xmltree.Element) Role {
	if r, ok := containerRoles[el.Tag]; ok {
		return r
	}
	return RoleDistinct
}
