package resolver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/beastgen/internal/registry"
	"github.com/vk/beastgen/internal/xmltree"
)

func parseDoc(t *testing.T, in string) (*xmltree.Document, *registry.Registry) {
	t.Helper()
	doc, err := xmltree.Parse(strings.NewReader(in))
	require.NoError(t, err)
	reg, err := registry.FromDocument(doc)
	require.NoError(t, err)
	return doc, reg
}

const renameDoc = `<beast version="1.10.4">
  <parameter id="frequencies" value="0.25 0.25 0.25 0.25"/>
  <operators id="operators">
    <deltaExchange delta="0.01" weight="1">
      <parameter idref="frequencies"/>
    </deltaExchange>
  </operators>
  <mcmc id="mcmc">
    <joint id="joint">
      <prior id="prior">
        <dirichletPrior alpha="1.0" sumsTo="1.0">
          <parameter idref="frequencies"/>
        </dirichletPrior>
      </prior>
    </joint>
  </mcmc>
</beast>`

func TestRename_UpdatesDeclarationAndAllReferences(t *testing.T) {
	doc, reg := parseDoc(t, renameDoc)

	require.NoError(t, Rename(doc, reg, "frequencies", "gene1.frequencies"))

	require.Nil(t, doc.FindByID("frequencies"))
	require.NotNil(t, doc.FindByID("gene1.frequencies"))

	var refs []string
	doc.Root.Walk(func(el *xmltree.Element) bool {
		if r := el.Ref(); r != "" {
			refs = append(refs, r)
		}
		return true
	})
	require.Equal(t, []string{"gene1.frequencies", "gene1.frequencies"}, refs)

	require.True(t, reg.Has("gene1.frequencies"))
	require.False(t, reg.Has("frequencies"))
	require.NoError(t, Validate(doc))
}

func TestRename_NoOpWhenUnchanged(t *testing.T) {
	doc, reg := parseDoc(t, renameDoc)
	require.NoError(t, Rename(doc, reg, "frequencies", "frequencies"))
	require.NotNil(t, doc.FindByID("frequencies"))
}

func TestRename_FailsWithoutMutation(t *testing.T) {
	doc, reg := parseDoc(t, renameDoc)

	var unknown *registry.UnknownIdentifierError
	require.ErrorAs(t, Rename(doc, reg, "kappa", "gene1.kappa"), &unknown)

	// Renaming onto a taken id is rejected before any attribute changes.
	var dup *registry.DuplicateIdentifierError
	require.ErrorAs(t, Rename(doc, reg, "frequencies", "operators"), &dup)
	require.NotNil(t, doc.FindByID("frequencies"))
	require.Equal(t, "frequencies", doc.Root.Child("operators").Child("deltaExchange").Child("parameter").Ref())
}

func TestRenameInFragment(t *testing.T) {
	doc, _ := parseDoc(t, renameDoc)

	RenameInFragment(doc.Root, "frequencies", "hky.frequencies")

	require.NotNil(t, doc.FindByID("hky.frequencies"))
	require.NoError(t, Validate(doc))
}

func TestValidate_ReportsDanglingReference(t *testing.T) {
	doc, err := xmltree.Parse(strings.NewReader(`<beast version="1.10.4">
  <operators id="operators">
    <scaleOperator weight="1">
      <parameter idref="kappa"/>
    </scaleOperator>
  </operators>
</beast>`))
	require.NoError(t, err)

	var dangling *DanglingReferenceError
	require.ErrorAs(t, Validate(doc), &dangling)
	require.Equal(t, "kappa", dangling.Ref)
	require.Contains(t, dangling.Path, "scaleOperator")
}

func TestValidate_ReportsDuplicateDeclarations(t *testing.T) {
	doc, err := xmltree.Parse(strings.NewReader(`<beast version="1.10.4">
  <parameter id="kappa"/>
  <parameter id="kappa"/>
</beast>`))
	require.NoError(t, err)

	var dup *registry.DuplicateIdentifierError
	require.ErrorAs(t, Validate(doc), &dup)
	require.Equal(t, "kappa", dup.ID)
}

func TestValidate_CleanDocument(t *testing.T) {
	doc, _ := parseDoc(t, renameDoc)
	require.NoError(t, Validate(doc))
}
