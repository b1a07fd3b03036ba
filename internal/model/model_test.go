package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{name: "known model", spec: Spec{Name: "HKY", Frequencies: FrequenciesEstimated}},
		{name: "unknown model", spec: Spec{Name: "WAG", Frequencies: FrequenciesEqual}, wantErr: `unknown substitution model "WAG"`},
		{name: "bad frequencies", spec: Spec{Name: "HKY", Frequencies: "observed"}, wantErr: "invalid frequencies mode"},
		{name: "equal-frequency family rejects estimated", spec: Spec{Name: "K80", Frequencies: FrequenciesEstimated}, wantErr: "equal base frequencies"},
		{name: "negative gamma", spec: Spec{Name: "GTR", Frequencies: FrequenciesEmpirical, GammaCategories: -1}, wantErr: "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSpecValidate_UnknownModelType(t *testing.T) {
	var unknown *UnknownModelError
	err := Spec{Name: "LG", Frequencies: FrequenciesEqual}.Validate()
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "LG", unknown.Name)
}

func TestSpecString(t *testing.T) {
	require.Equal(t, "HKY+G4+I (estimated frequencies)",
		Spec{Name: "HKY", Frequencies: FrequenciesEstimated, GammaCategories: 4, ProportionInvariant: true}.String())
	require.Equal(t, "JC69 (equal frequencies)",
		Spec{Name: "JC69", Frequencies: FrequenciesEqual}.String())
}

func TestSelect_FragmentSequence(t *testing.T) {
	ctx := context.Background()
	sel := NewSelector()

	fragments, err := sel.Select(ctx, Spec{
		Name:                "HKY",
		Frequencies:         FrequenciesEstimated,
		GammaCategories:     4,
		ProportionInvariant: true,
	})
	require.NoError(t, err)

	names := make([]string, len(fragments))
	for i, f := range fragments {
		names[i] = f.Name
	}
	require.Equal(t, []string{"hky.xml", "estimated_frequencies.xml", "gamma.xml", "proportion_invariant.xml"}, names)
}

func TestSelect_EstimatedFrequenciesGetInitialValues(t *testing.T) {
	ctx := context.Background()
	sel := NewSelector()

	fragments, err := sel.Select(ctx, Spec{Name: "HKY", Frequencies: FrequenciesEstimated})
	require.NoError(t, err)

	param := fragments[0].Doc.FindByID("frequencies")
	require.Equal(t, "0.25 0.25 0.25 0.25", param.Attr("value"))
	require.False(t, param.HasAttr("dimension"))
}

func TestSelect_EmpiricalFrequenciesLeftUnvalued(t *testing.T) {
	ctx := context.Background()
	sel := NewSelector()

	fragments, err := sel.Select(ctx, Spec{Name: "GTR", Frequencies: FrequenciesEmpirical})
	require.NoError(t, err)
	require.Len(t, fragments, 1)

	// Empirical frequencies carry no initial values; the dataset binder
	// wires in the source alignment once it exists.
	param := fragments[0].Doc.FindByID("frequencies")
	require.False(t, param.HasAttr("value"))
	require.Equal(t, "4", param.Attr("dimension"))
	require.Nil(t, fragments[0].Doc.FindByID("frequencyModel").Child("alignment"))
}

func TestSelect_GammaCategoryOverride(t *testing.T) {
	ctx := context.Background()
	sel := NewSelector()

	fragments, err := sel.Select(ctx, Spec{Name: "HKY", Frequencies: FrequenciesEmpirical, GammaCategories: 6})
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	shape := fragments[1].Doc.Root.Descend("siteModel", "gammaShape")
	require.Equal(t, "6", shape.Attr("gammaCategories"))
}

func TestSelect_SharedRateConstraintsBakedIn(t *testing.T) {
	ctx := context.Background()
	sel := NewSelector()

	fragments, err := sel.Select(ctx, Spec{Name: "TN93", Frequencies: FrequenciesEmpirical})
	require.NoError(t, err)

	// The three remaining transversion rates all reference the one declared
	// transversion parameter.
	gtr := fragments[0].Doc.FindByID("tn93")
	require.NotNil(t, gtr)
	for _, tag := range []string{"rateAT", "rateCG", "rateGT"} {
		rate := gtr.Child(tag)
		require.NotNil(t, rate, tag)
		require.Equal(t, "tn93.tv", rate.Child("parameter").Ref(), tag)
	}
}

func TestSelector_TemplateDirOverride(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	custom := `<?xml version="1.0" standalone="yes"?>
<beast version="1.10.4">
  <HKYModel id="hky">
    <frequencies>
      <frequencyModel id="frequencyModel" dataType="nucleotide">
        <frequencies>
          <parameter id="frequencies" value="0.4 0.1 0.1 0.4"/>
        </frequencies>
      </frequencyModel>
    </frequencies>
    <kappa>
      <parameter id="kappa" value="8.0" lower="0.0"/>
    </kappa>
  </HKYModel>
</beast>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hky.xml"), []byte(custom), 0o600))

	sel := NewSelector()
	require.NoError(t, sel.UseTemplateDir(dir))

	fragments, err := sel.Select(ctx, Spec{Name: "HKY", Frequencies: FrequenciesEmpirical})
	require.NoError(t, err)
	require.Equal(t, "8.0", fragments[0].Doc.FindByID("kappa").Attr("value"))

	// Models without an override still come from the embedded catalogue.
	gtrFragments, err := sel.Select(ctx, Spec{Name: "GTR", Frequencies: FrequenciesEmpirical})
	require.NoError(t, err)
	require.NotNil(t, gtrFragments[0].Doc.FindByID("gtr.ac"))
}

func TestSelect_FixedFrequenciesStripEstimationMachinery(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	custom := `<?xml version="1.0" standalone="yes"?>
<beast version="1.10.4">
  <HKYModel id="hky">
    <frequencies>
      <frequencyModel id="frequencyModel" dataType="nucleotide">
        <frequencies>
          <parameter id="frequencies" dimension="4"/>
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
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hky.xml"), []byte(custom), 0o600))

	sel := NewSelector()
	require.NoError(t, sel.UseTemplateDir(dir))

	// Fixed modes drop the operator and prior the override declares on the
	// frequencies parameter; everything acting on other parameters stays.
	for _, mode := range []Frequencies{FrequenciesEqual, FrequenciesEmpirical} {
		fragments, err := sel.Select(ctx, Spec{Name: "HKY", Frequencies: mode})
		require.NoError(t, err, mode)
		doc := fragments[0].Doc

		operators := doc.FindByID("operators")
		require.Empty(t, operators.ChildrenByTag("deltaExchange"), mode)
		require.Len(t, operators.ChildrenByTag("scaleOperator"), 1, mode)
		prior := doc.FindByID("prior")
		require.Empty(t, prior.ChildrenByTag("dirichletPrior"), mode)
	}

	// Estimation keeps them: the parameter is meant to move.
	fragments, err := sel.Select(ctx, Spec{Name: "HKY", Frequencies: FrequenciesEstimated})
	require.NoError(t, err)
	operators := fragments[0].Doc.FindByID("operators")
	require.Len(t, operators.ChildrenByTag("deltaExchange"), 1)
}

func TestSkeleton(t *testing.T) {
	sel := NewSelector()
	doc, err := sel.Skeleton()
	require.NoError(t, err)
	require.Equal(t, "beast", doc.Root.Tag)
	require.NotNil(t, doc.FindByID("treeLikelihood"))
	require.NotNil(t, doc.FindByID("operators"))
	require.NotNil(t, doc.FindByID("fileLog"))
}
