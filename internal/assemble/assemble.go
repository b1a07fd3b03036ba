// Package assemble orchestrates one assembly run: the selector chooses
// template fragments per partition, the merger combines them with the
// skeleton, and the binder performs the final data-dependent rewrite. The
// document and its identifier registry are owned by the run; on error both
// are unusable and the caller must start over.
package assemble

import (
	"context"
	"fmt"

	"github.com/vk/beastgen/internal/bind"
	"github.com/vk/beastgen/internal/ctxlog"
	"github.com/vk/beastgen/internal/merge"
	"github.com/vk/beastgen/internal/model"
	"github.com/vk/beastgen/internal/registry"
	"github.com/vk/beastgen/internal/xmltree"
)

// sharedContainers are the skeleton blocks model fragments union into rather
// than redeclare, so partition prefixing must leave their identifiers alone.
var sharedContainers = []string{
	"operators", "mcmc", "joint", "prior", "likelihood",
	"fileLog", "screenLog", "treeFileLog",
}

// sharedFrequencyIDs additionally stay unprefixed when base frequencies are
// linked across partitions.
var sharedFrequencyIDs = []string{"frequencies", "frequencyModel"}

// Options configure an Assembler.
type Options struct {
	// TemplateDir overlays the embedded template catalogue with .xml files
	// from disk. Empty means embedded templates only.
	TemplateDir string
	// Policy picks the side renamed on a non-equivalent id collision
	// between fragments.
	Policy merge.RenamePolicy
	// Linkage selects shared or per-partition base frequencies.
	Linkage bind.Linkage
}

// checkSharedFrequencies rejects datasets whose partitions disagree on the
// frequency mode while the frequencies parameter is shared: one partition
// fixing the parameter while another estimates it cannot both hold.
func checkSharedFrequencies(partitions []bind.Partition) error {
	first := partitions[0]
	for _, p := range partitions[1:] {
		if p.Model.Frequencies != first.Model.Frequencies {
			return fmt.Errorf(
				"shared frequency linkage needs one frequency mode: partition %q uses %s, partition %q uses %s",
				first.Name, first.Model.Frequencies, p.Name, p.Model.Frequencies)
		}
	}
	return nil
}

// Assembler builds complete run documents from a dataset description.
type Assembler struct {
	selector *model.Selector
	opts     Options
}

// New returns an assembler for the given options.
func New(opts Options) (*Assembler, error) {
	sel := model.NewSelector()
	if opts.TemplateDir != "" {
		if err := sel.UseTemplateDir(opts.TemplateDir); err != nil {
			return nil, err
		}
	}
	return &Assembler{selector: sel, opts: opts}, nil
}

// Assemble produces a complete, validated run document for the dataset. The
// same dataset always yields a byte-identical serialization: fragments are
// parsed fresh and merged in partition order.
func (a *Assembler) Assemble(ctx context.Context, data *bind.Context) (*xmltree.Document, error) {
	logger := ctxlog.FromContext(ctx)

	doc, err := a.selector.Skeleton()
	if err != nil {
		return nil, err
	}
	reg, err := registry.FromDocument(doc)
	if err != nil {
		return nil, err
	}

	multi := len(data.Partitions) > 1
	if a.opts.Linkage == bind.LinkageShared && multi {
		if err := checkSharedFrequencies(data.Partitions); err != nil {
			return nil, err
		}
	}

	frequenciesMerged := false
	for _, p := range data.Partitions {
		if p.Model.Name == "" {
			return nil, &bind.UnmappedPartitionError{Partition: p.Name}
		}
		fragments, err := a.selector.Select(ctx, p.Model)
		if err != nil {
			return nil, fmt.Errorf("partition %q: %w", p.Name, err)
		}
		for _, f := range fragments {
			if f.Frequencies && a.opts.Linkage == bind.LinkageShared {
				// The shared frequencies parameter takes its operator
				// and prior once, from the first partition estimating.
				if frequenciesMerged {
					continue
				}
				frequenciesMerged = true
			}
			opts := merge.Options{Policy: a.opts.Policy, Source: f.Name}
			if multi {
				opts.Prefix = p.Name
				opts.Protected = append(opts.Protected, sharedContainers...)
				if a.opts.Linkage == bind.LinkageShared {
					opts.Protected = append(opts.Protected, sharedFrequencyIDs...)
				}
			}
			if err := merge.Merge(ctx, doc, reg, f.Doc, opts); err != nil {
				return nil, fmt.Errorf("partition %q: %w", p.Name, err)
			}
		}
		logger.Debug("partition assembled", "partition", p.Name, "model", p.Model.String())
	}

	if err := bind.Bind(ctx, doc, reg, data, bind.Options{Frequencies: a.opts.Linkage}); err != nil {
		return nil, err
	}
	logger.Info("run document assembled",
		"partitions", len(data.Partitions), "taxa", len(data.Taxa), "identifiers", reg.Len())
	return doc, nil
}
