package xmltree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const hkyDoc = `<?xml version="1.0" standalone="yes"?>
<beast version="1.10.4">
  <!-- substitution model -->
  <HKYModel id="hky">
    <frequencies>
      <frequencyModel id="frequencyModel" dataType="nucleotide">
        <frequencies>
          <parameter id="frequencies" value="0.25 0.25 0.25 0.25"/>
        </frequencies>
      </frequencyModel>
    </frequencies>
    <kappa>
      <parameter id="kappa" value="2.0" lower="0.0"/>
    </kappa>
  </HKYModel>
  <operators id="operators">
    <scaleOperator scaleFactor="0.75" weight="1">
      <parameter idref="kappa"/>
    </scaleOperator>
  </operators>
</beast>
`

func TestParse_BuildsTree(t *testing.T) {
	doc, err := Parse(strings.NewReader(hkyDoc))
	require.NoError(t, err)
	require.Equal(t, "beast", doc.Root.Tag)
	require.Equal(t, "1.10.4", doc.Root.Attr("version"))

	hky := doc.Root.Child("HKYModel")
	require.NotNil(t, hky)
	require.Equal(t, "hky", hky.ID())

	freq := hky.Descend("frequencies", "frequencyModel", "frequencies", "parameter")
	require.NotNil(t, freq)
	require.Equal(t, "0.25 0.25 0.25 0.25", freq.Attr("value"))
}

func TestParse_DropsCommentsAndWhitespace(t *testing.T) {
	doc, err := Parse(strings.NewReader(hkyDoc))
	require.NoError(t, err)

	// The comment between <beast> and <HKYModel> must not appear as text.
	require.Empty(t, doc.Root.Text)
	require.Len(t, doc.Root.Children, 2)
}

func TestParse_MixedContentSequence(t *testing.T) {
	in := `<beast version="1.10.4">
  <alignment id="alignment" dataType="nucleotide">
    <sequence>
      <taxon idref="A"/>
      ACGTACGT
    </sequence>
  </alignment>
</beast>`
	doc, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	seq := doc.Root.Descend("alignment", "sequence")
	require.NotNil(t, seq)
	require.Equal(t, "ACGTACGT", seq.Text)
	require.Equal(t, "A", seq.Child("taxon").Ref())
}

func TestParse_RejectsMalformedInput(t *testing.T) {
	_, err := Parse(strings.NewReader(`<beast version="1.10.4"><operators></beast>`))
	require.Error(t, err)

	_, err = Parse(strings.NewReader(``))
	require.Error(t, err)
}

func TestSerialize_RoundTripsByteIdentical(t *testing.T) {
	doc, err := Parse(strings.NewReader(hkyDoc))
	require.NoError(t, err)

	out, err := doc.Bytes()
	require.NoError(t, err)

	// Reparsing the output and serializing again must be a fixed point.
	doc2, err := ParseBytes(out)
	require.NoError(t, err)
	out2, err := doc2.Bytes()
	require.NoError(t, err)
	require.Equal(t, string(out), string(out2))
}

func TestSetAttr_PreservesOrder(t *testing.T) {
	el := NewElement("parameter")
	el.SetAttr("id", "kappa")
	el.SetAttr("value", "2.0")
	el.SetAttr("lower", "0.0")
	el.SetAttr("value", "4.0")

	require.Equal(t, []Attr{
		{Name: "id", Value: "kappa"},
		{Name: "value", Value: "4.0"},
		{Name: "lower", Value: "0.0"},
	}, el.Attrs)
}

func TestEqual_IgnoresAttributeOrder(t *testing.T) {
	a := NewElement("parameter").SetAttr("id", "frequencies").SetAttr("value", "0.25 0.25 0.25 0.25")
	b := NewElement("parameter").SetAttr("value", "0.25 0.25 0.25 0.25").SetAttr("id", "frequencies")
	require.True(t, a.Equal(b))

	b.SetAttr("value", "0.4 0.1 0.1 0.4")
	require.False(t, a.Equal(b))
}

func TestClone_IsIndependent(t *testing.T) {
	doc, err := Parse(strings.NewReader(hkyDoc))
	require.NoError(t, err)

	clone := doc.Clone()
	clone.Root.FindByID("kappa").SetAttr("value", "8.0")

	require.Equal(t, "2.0", doc.Root.FindByID("kappa").Attr("value"))
	require.Equal(t, "8.0", clone.Root.FindByID("kappa").Attr("value"))
}

func TestPathOf_IncludesIdentifiers(t *testing.T) {
	doc, err := Parse(strings.NewReader(hkyDoc))
	require.NoError(t, err)

	kappa := doc.Root.FindByID("kappa")
	require.Equal(t, `beast/HKYModel[@id="hky"]/kappa/parameter[@id="kappa"]`, doc.PathOf(kappa))

	require.Empty(t, doc.PathOf(NewElement("orphan")))
}

func TestRemoveChild(t *testing.T) {
	doc, err := Parse(strings.NewReader(hkyDoc))
	require.NoError(t, err)

	ops := doc.Root.Child("operators")
	scale := ops.Child("scaleOperator")
	require.True(t, ops.RemoveChild(scale))
	require.False(t, ops.RemoveChild(scale))
	require.Empty(t, ops.Children)
}
