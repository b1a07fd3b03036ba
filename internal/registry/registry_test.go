package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/beastgen/internal/xmltree"
)

func TestRegisterAndLookup(t *testing.T) {
	reg := New()
	kappa := xmltree.NewElement("parameter").SetAttr("id", "kappa")

	require.NoError(t, reg.Register("kappa", kappa))

	got, err := reg.Lookup("kappa")
	require.NoError(t, err)
	require.Same(t, kappa, got)
}

func TestRegister_DuplicateFails(t *testing.T) {
	reg := New()
	a := xmltree.NewElement("parameter").SetAttr("id", "frequencies")
	b := xmltree.NewElement("parameter").SetAttr("id", "frequencies")

	require.NoError(t, reg.Register("frequencies", a))

	err := reg.Register("frequencies", b)
	var dup *DuplicateIdentifierError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "frequencies", dup.ID)
}

func TestLookup_UnknownFails(t *testing.T) {
	reg := New()

	_, err := reg.Lookup("siteModel")
	var unknown *UnknownIdentifierError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "siteModel", unknown.ID)
}

func TestAllocateUnique_DeterministicSuffixes(t *testing.T) {
	reg := New()
	require.Equal(t, "kappa", reg.AllocateUnique("kappa", xmltree.NewElement("parameter")))
	require.Equal(t, "kappa2", reg.AllocateUnique("kappa", xmltree.NewElement("parameter")))
	require.Equal(t, "kappa3", reg.AllocateUnique("kappa", xmltree.NewElement("parameter")))
	require.Equal(t, 3, reg.Len())
}

func TestRename(t *testing.T) {
	reg := New()
	el := xmltree.NewElement("parameter").SetAttr("id", "frequencies")
	require.NoError(t, reg.Register("frequencies", el))

	require.NoError(t, reg.Rename("frequencies", "gene1.frequencies"))

	require.False(t, reg.Has("frequencies"))
	got, err := reg.Lookup("gene1.frequencies")
	require.NoError(t, err)
	require.Same(t, el, got)
}

func TestRename_TargetTakenFails(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("a", xmltree.NewElement("parameter")))
	require.NoError(t, reg.Register("b", xmltree.NewElement("parameter")))

	var dup *DuplicateIdentifierError
	require.ErrorAs(t, reg.Rename("a", "b"), &dup)

	var unknown *UnknownIdentifierError
	require.ErrorAs(t, reg.Rename("missing", "c"), &unknown)
}

func TestRelease(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("kappa", xmltree.NewElement("parameter")))
	require.NoError(t, reg.Release("kappa"))
	require.False(t, reg.Has("kappa"))

	var unknown *UnknownIdentifierError
	require.ErrorAs(t, reg.Release("kappa"), &unknown)
}

func TestFromDocument(t *testing.T) {
	doc, err := xmltree.Parse(strings.NewReader(`<beast version="1.10.4">
  <parameter id="kappa" value="2.0"/>
  <operators id="operators">
    <scaleOperator weight="1">
      <parameter idref="kappa"/>
    </scaleOperator>
  </operators>
</beast>`))
	require.NoError(t, err)

	reg, err := FromDocument(doc)
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())
	require.True(t, reg.Has("kappa"))
	require.True(t, reg.Has("operators"))
}

func TestFromDocument_DuplicateIDFails(t *testing.T) {
	doc, err := xmltree.Parse(strings.NewReader(`<beast version="1.10.4">
  <parameter id="kappa" value="2.0"/>
  <statistic id="kappa"/>
</beast>`))
	require.NoError(t, err)

	_, err = FromDocument(doc)
	var dup *DuplicateIdentifierError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "kappa", dup.ID)
	require.Contains(t, dup.Path, `statistic[@id="kappa"]`)
}
