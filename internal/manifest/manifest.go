// Package manifest loads the HCL dataset manifest that drives an assembly
// run: partition blocks describing the alignment, taxon blocks carrying
// sequences, dates and traits, plus run-length and linkage settings.
package manifest

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/beastgen/internal/bind"
	"github.com/vk/beastgen/internal/ctxlog"
	"github.com/vk/beastgen/internal/iqtree"
)

// Manifest is the decoded dataset description.
type Manifest struct {
	Data    bind.Context
	Linkage bind.Linkage
}

// hclManifest is the top-level structure of a manifest file for decoding.
type hclManifest struct {
	Run        *hclRun         `hcl:"run,block"`
	Linkage    *hclLinkage     `hcl:"linkage,block"`
	Partitions []*hclPartition `hcl:"partition,block"`
	Taxa       []*hclTaxon     `hcl:"taxon,block"`
}

type hclRun struct {
	ChainLength int64 `hcl:"chain_length"`
	Samples     int   `hcl:"samples,optional"`
}

type hclLinkage struct {
	Frequencies string `hcl:"frequencies"`
}

type hclPartition struct {
	Name     string `hcl:"name,label"`
	Length   int    `hcl:"length,optional"`
	DataType string `hcl:"datatype,optional"`
	// Model is an IQ-TREE style model string ("HKY+F+G4"). It may be left
	// empty when the run takes its models from a model-test report.
	Model string `hcl:"model,optional"`
}

type hclTaxon struct {
	Name      string            `hcl:"name,label"`
	Date      *float64          `hcl:"date,optional"`
	Sequences map[string]string `hcl:"sequences,optional"`
	Traits    map[string]string `hcl:"traits,optional"`
}

// evalContext exposes the recognized datatype names as typed constants, so a
// manifest can write `datatype = datatype.amino_acid` instead of a bare
// string and typos fail at decode time.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"datatype": cty.ObjectVal(map[string]cty.Value{
				"nucleotide": cty.StringVal("nucleotide"),
				"amino_acid": cty.StringVal("aminoAcid"),
				"binary":     cty.StringVal("binary"),
			}),
		},
	}
}

// Load parses and decodes a manifest file.
func Load(ctx context.Context, path string) (*Manifest, error) {
	logger := ctxlog.FromContext(ctx)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, diags)
	}

	var decoded hclManifest
	diags = gohcl.DecodeBody(file.Body, evalContext(), &decoded)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, diags)
	}

	m, err := fromHCL(ctx, &decoded)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	logger.Debug("manifest loaded",
		"path", path, "partitions", len(m.Data.Partitions), "taxa", len(m.Data.Taxa))
	return m, nil
}

func fromHCL(ctx context.Context, decoded *hclManifest) (*Manifest, error) {
	m := &Manifest{}

	if decoded.Linkage != nil {
		switch decoded.Linkage.Frequencies {
		case "shared":
			m.Linkage = bind.LinkageShared
		case "per-partition":
			m.Linkage = bind.LinkagePerPartition
		default:
			return nil, fmt.Errorf("linkage block: frequencies must be %q or %q, got %q",
				"shared", "per-partition", decoded.Linkage.Frequencies)
		}
	}

	if decoded.Run != nil {
		m.Data.ChainLength = decoded.Run.ChainLength
		m.Data.Samples = decoded.Run.Samples
	}

	for _, p := range decoded.Partitions {
		partition := bind.Partition{
			Name:     p.Name,
			Length:   p.Length,
			DataType: p.DataType,
		}
		if p.Model != "" {
			spec, err := iqtree.ParseModel(ctx, p.Model)
			if err != nil {
				return nil, fmt.Errorf("partition %q: %w", p.Name, err)
			}
			partition.Model = spec
		}
		m.Data.Partitions = append(m.Data.Partitions, partition)
	}

	for _, t := range decoded.Taxa {
		taxon := bind.Taxon{
			Name:      t.Name,
			Sequences: t.Sequences,
			Traits:    t.Traits,
		}
		if t.Date != nil {
			taxon.Date = *t.Date
			taxon.HasDate = true
		}
		m.Data.Taxa = append(m.Data.Taxa, taxon)
	}

	return m, nil
}

// ApplyModelTest fills in partition models and lengths from an IQ-TREE
// model-test result. Models given explicitly in the manifest win over the
// report; a partition named by the report but absent from the manifest is an
// error, since the dataset description would silently diverge from the
// model test otherwise.
func (m *Manifest) ApplyModelTest(ctx context.Context, res *iqtree.Result) error {
	logger := ctxlog.FromContext(ctx)

	byName := make(map[string]int, len(m.Data.Partitions))
	for i, p := range m.Data.Partitions {
		byName[p.Name] = i
	}
	for name := range res.Models {
		if _, ok := byName[name]; !ok {
			return fmt.Errorf("model test names partition %q, which the manifest does not declare", name)
		}
	}

	for i := range m.Data.Partitions {
		p := &m.Data.Partitions[i]
		if spec, ok := res.Models[p.Name]; ok && p.Model.Name == "" {
			p.Model = spec
			logger.Debug("model assigned from model test", "partition", p.Name, "model", spec.String())
		}
		if sites, ok := res.Partitions[p.Name]; ok && p.Length == 0 {
			p.Length = len(sites)
		}
	}
	return nil
}
