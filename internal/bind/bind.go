package bind

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/beastgen/internal/ctxlog"
	"github.com/vk/beastgen/internal/model"
	"github.com/vk/beastgen/internal/registry"
	"github.com/vk/beastgen/internal/resolver"
	"github.com/vk/beastgen/internal/xmltree"
)

// Options tune dataset binding.
type Options struct {
	// Frequencies selects shared or per-partition base frequencies. It
	// must match the linkage the document was assembled with, since it
	// decides which identifiers the binder rewrites.
	Frequencies Linkage
}

// Bind rewrites doc in place so every dataset-shaped quantity matches data.
// The registry must be the one the document was assembled with; new elements
// introduced by binding register their identifiers through it. On error the
// document is left in an unspecified state and must be discarded.
func Bind(ctx context.Context, doc *xmltree.Document, reg *registry.Registry, data *Context, opts Options) error {
	logger := ctxlog.FromContext(ctx)

	if err := data.validate(); err != nil {
		return fmt.Errorf("binding dataset: %w", err)
	}
	for _, p := range data.Partitions {
		if p.Model.Name == "" {
			return &UnmappedPartitionError{Partition: p.Name}
		}
		if doc.FindByID(data.prefix(p)+"siteModel") == nil {
			return &UnmappedPartitionError{Partition: p.Name, Model: p.Model.Name}
		}
	}

	b := &binder{doc: doc, reg: reg, data: data, opts: opts}
	steps := []struct {
		name string
		run  func() error
	}{
		{"taxa", b.bindTaxa},
		{"alignments", b.bindAlignments},
		{"traits", b.bindTraits},
		{"likelihood partitions", b.bindLikelihood},
		{"base frequencies", b.bindFrequencies},
		{"relative rates", b.bindRelativeRates},
		{"run length", b.bindRunLength},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("binding %s: %w", step.name, err)
		}
	}
	if err := resolver.Validate(doc); err != nil {
		return fmt.Errorf("binding dataset: %w", err)
	}

	logger.Debug("dataset bound",
		"partitions", len(data.Partitions),
		"taxa", len(data.Taxa),
		"chainLength", data.ChainLength)
	return nil
}

type binder struct {
	doc  *xmltree.Document
	reg  *registry.Registry
	data *Context
	opts Options
}

// bindTaxa fills the taxa block with one taxon per dataset entry, carrying
// its sampling date and discrete trait values.
func (b *binder) bindTaxa() error {
	taxa := b.doc.FindByID("taxa")
	if taxa == nil {
		return fmt.Errorf("document declares no taxa block")
	}
	for _, t := range b.data.Taxa {
		taxon := xmltree.NewElement("taxon").SetAttr("id", t.Name)
		if err := b.reg.Register(t.Name, taxon); err != nil {
			return err
		}
		if t.HasDate {
			taxon.Append(xmltree.NewElement("date").
				SetAttr("value", formatFloat(t.Date)).
				SetAttr("direction", "forwards").
				SetAttr("units", "years"))
		}
		for _, name := range sortedKeys(t.Traits) {
			attr := xmltree.NewElement("attr").SetAttr("name", name)
			attr.Text = t.Traits[name]
			taxon.Append(attr)
		}
		taxa.Append(taxon)
	}
	return nil
}

// bindAlignments inserts one alignment and one site-pattern block per
// partition, directly after the taxa block. Taxa without a sequence for a
// partition get a fully ambiguous placeholder of the partition's length.
func (b *binder) bindAlignments() error {
	root := b.doc.Root
	taxa := b.doc.FindByID("taxa")
	at := root.IndexOf(taxa) + 1

	for _, p := range b.data.Partitions {
		alignment := xmltree.NewElement("alignment").
			SetAttr("id", p.Name).
			SetAttr("dataType", dataTypeName(p))
		if err := b.reg.Register(p.Name, alignment); err != nil {
			return err
		}
		for _, t := range b.data.Taxa {
			seq := t.Sequences[p.Name]
			if seq == "" {
				seq = strings.Repeat("?", p.Length)
			} else if len(seq) != p.Length {
				return fmt.Errorf("taxon %q: sequence for partition %q has length %d, want %d",
					t.Name, p.Name, len(seq), p.Length)
			}
			sequence := xmltree.NewElement("sequence")
			sequence.Append(xmltree.NewElement("taxon").SetAttr("idref", t.Name))
			sequence.Text = seq
			alignment.Append(sequence)
		}
		root.InsertAt(at, alignment)
		at++
	}
	for _, p := range b.data.Partitions {
		id := p.Name + ".patterns"
		patterns := xmltree.NewElement("patterns").
			SetAttr("id", id).
			SetAttr("from", "1").
			SetAttr("strip", "false")
		patterns.Append(xmltree.NewElement("alignment").SetAttr("idref", p.Name))
		if err := b.reg.Register(id, patterns); err != nil {
			return err
		}
		root.InsertAt(at, patterns)
		at++
	}
	return nil
}

// bindTraits declares a general datatype and an attribute-pattern block per
// discrete trait observed across the taxa, with one state per distinct value.
func (b *binder) bindTraits() error {
	values := make(map[string]map[string]bool)
	for _, t := range b.data.Taxa {
		for name, value := range t.Traits {
			if values[name] == nil {
				values[name] = make(map[string]bool)
			}
			values[name][value] = true
		}
	}
	if len(values) == 0 {
		return nil
	}

	root := b.doc.Root
	last := b.doc.FindByID(b.data.Partitions[len(b.data.Partitions)-1].Name + ".patterns")
	at := root.IndexOf(last) + 1

	for _, name := range sortedKeys(values) {
		dataType := xmltree.NewElement("generalDataType").SetAttr("id", name+".dataType")
		states := make([]string, 0, len(values[name]))
		for v := range values[name] {
			states = append(states, v)
		}
		sort.Strings(states)
		for _, v := range states {
			dataType.Append(xmltree.NewElement("state").SetAttr("code", v))
		}
		if err := b.reg.Register(name+".dataType", dataType); err != nil {
			return err
		}
		root.InsertAt(at, dataType)
		at++

		pattern := xmltree.NewElement("attributePatterns").
			SetAttr("id", name+".pattern").
			SetAttr("attribute", name)
		pattern.Append(xmltree.NewElement("taxa").SetAttr("idref", "taxa"))
		pattern.Append(xmltree.NewElement("generalDataType").SetAttr("idref", name+".dataType"))
		if err := b.reg.Register(name+".pattern", pattern); err != nil {
			return err
		}
		root.InsertAt(at, pattern)
		at++
	}
	return nil
}

// bindLikelihood wires the tree data likelihood to the partitions: one
// partition block per dataset partition, ahead of the tree model reference.
func (b *binder) bindLikelihood() error {
	likelihood := b.doc.FindByID("treeLikelihood")
	if likelihood == nil {
		return fmt.Errorf("document declares no treeDataLikelihood block")
	}
	for i, p := range b.data.Partitions {
		partition := xmltree.NewElement("partition")
		partition.Append(xmltree.NewElement("patterns").SetAttr("idref", p.Name+".patterns"))
		partition.Append(xmltree.NewElement("siteModel").SetAttr("idref", b.data.prefix(p)+"siteModel"))
		likelihood.InsertAt(i, partition)
	}
	return nil
}

// bindFrequencies finishes the empirical frequency treatment now that the
// alignments exist: each empirical frequency model gets an alignment
// reference and its parameter is sized to the partition's state space. With
// shared linkage the single frequency model reads from the first partition's
// alignment.
func (b *binder) bindFrequencies() error {
	shared := b.opts.Frequencies == LinkageShared || len(b.data.Partitions) == 1
	for _, p := range b.data.Partitions {
		if p.Model.Frequencies != model.FrequenciesEmpirical {
			continue
		}
		prefix := b.data.prefix(p)
		alignment := p.Name
		if shared {
			prefix = ""
			alignment = b.data.Partitions[0].Name
		}
		param := b.doc.FindByID(prefix + "frequencies")
		freqModel := b.doc.FindByID(prefix + "frequencyModel")
		if param == nil || freqModel == nil {
			return fmt.Errorf("partition %q: no frequency model declared", p.Name)
		}
		param.SetAttr("dimension", strconv.Itoa(p.States()))
		if ref := freqModel.Child("alignment"); ref != nil {
			ref.SetAttr("idref", alignment)
		} else {
			freqModel.Append(xmltree.NewElement("alignment").SetAttr("idref", alignment))
		}
	}
	return nil
}

// bindRelativeRates converts per-partition relative rates from the mu to the
// bounded nu parameterization: each site model's rate becomes a weighted nu
// summing to one across partitions, collected in an allNus compound parameter
// moved by a delta-exchange operator under a Dirichlet prior. The original mu
// stays observable as a derived statistic next to each site model.
func (b *binder) bindRelativeRates() error {
	if len(b.data.Partitions) < 2 {
		return nil
	}

	totalSites := 0
	for _, p := range b.data.Partitions {
		totalSites += p.Length
	}

	root := b.doc.Root
	fileLog := b.doc.FindByID("fileLog")
	compound := xmltree.NewElement("compoundParameter").SetAttr("id", "allNus")
	weights := make([]string, 0, len(b.data.Partitions))
	for _, p := range b.data.Partitions {
		prefix := b.data.prefix(p)
		sm := b.doc.FindByID(prefix + "siteModel")
		rate := sm.Child("relativeRate")
		if rate == nil {
			return fmt.Errorf("site model %q declares no relativeRate block", prefix+"siteModel")
		}
		muID := prefix + "siteModel.mu"
		nuID := prefix + "nu"
		if err := resolver.Rename(b.doc, b.reg, muID, nuID); err != nil {
			return err
		}
		rate.SetAttr("weight", formatFloat(float64(totalSites)/float64(p.Length)))
		rate.Child("parameter").
			SetAttr("value", formatFloat(1/float64(len(b.data.Partitions)))).
			SetAttr("lower", "0.0").
			SetAttr("upper", "1.0")

		// mu is derived from nu now; a statistic keeps it in the output.
		stat := xmltree.NewElement("statistic").
			SetAttr("id", muID).
			SetAttr("name", "mu")
		stat.Append(xmltree.NewElement("siteModel").SetAttr("idref", prefix+"siteModel"))
		if err := b.reg.Register(muID, stat); err != nil {
			return err
		}
		root.InsertAt(root.IndexOf(sm)+1, stat)

		if fileLog != nil {
			// The rename turned any existing mu log column into nu; drop
			// it so the pair below is the only entry.
			for _, c := range fileLog.ChildrenByTag("parameter") {
				if c.Ref() == nuID {
					fileLog.RemoveChild(c)
				}
			}
			fileLog.Append(xmltree.NewElement("statistic").SetAttr("idref", muID))
			fileLog.Append(xmltree.NewElement("parameter").SetAttr("idref", nuID))
		}

		compound.Append(xmltree.NewElement("parameter").SetAttr("idref", nuID))
		weights = append(weights, strconv.Itoa(p.Length))
	}
	if err := b.reg.Register("allNus", compound); err != nil {
		return err
	}

	operators := b.doc.FindByID("operators")
	if operators == nil {
		return fmt.Errorf("document declares no operators block")
	}
	root.InsertAt(root.IndexOf(operators), compound)

	exchange := xmltree.NewElement("deltaExchange").
		SetAttr("delta", "0.01").
		SetAttr("parameterWeights", strings.Join(weights, " ")).
		SetAttr("weight", "3")
	exchange.Append(xmltree.NewElement("parameter").SetAttr("idref", "allNus"))
	operators.Append(exchange)

	prior := b.doc.FindByID("prior")
	if prior == nil {
		return fmt.Errorf("document declares no prior block")
	}
	dirichlet := xmltree.NewElement("dirichletPrior").
		SetAttr("alpha", "1.0").
		SetAttr("sumsTo", "1.0")
	dirichlet.Append(xmltree.NewElement("parameter").SetAttr("idref", "allNus"))
	prior.Append(dirichlet)

	if fileLog != nil {
		fileLog.Append(xmltree.NewElement("compoundParameter").SetAttr("idref", "allNus"))
	}
	return nil
}

// bindRunLength sets the chain length and derives every logger's interval
// from the requested number of samples.
func (b *binder) bindRunLength() error {
	if b.data.ChainLength <= 0 {
		return nil
	}
	mcmc := b.doc.FindByID("mcmc")
	if mcmc == nil {
		return fmt.Errorf("document declares no mcmc block")
	}
	mcmc.SetAttr("chainLength", strconv.FormatInt(b.data.ChainLength, 10))

	samples := b.data.Samples
	if samples <= 0 {
		samples = 10000
	}
	every := b.data.ChainLength / int64(samples)
	if every < 1 {
		every = 1
	}
	for _, log := range mcmc.ChildrenByTag("log") {
		log.SetAttr("logEvery", strconv.FormatInt(every, 10))
	}
	for _, log := range mcmc.ChildrenByTag("logTree") {
		log.SetAttr("logEvery", strconv.FormatInt(every, 10))
	}
	return nil
}

func dataTypeName(p Partition) string {
	if p.DataType == "" {
		return "nucleotide"
	}
	return p.DataType
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
