package bind

import (
	"fmt"

	"github.com/vk/beastgen/internal/model"
)

// Linkage controls whether base frequencies are shared across partitions or
// scoped to each partition. It only matters for multi-partition datasets.
type Linkage int

const (
	// LinkagePerPartition gives every partition its own frequencies
	// parameter, scoped with the partition prefix.
	LinkagePerPartition Linkage = iota
	// LinkageShared keeps a single frequencies parameter referenced by
	// every partition's substitution model.
	LinkageShared
)

// Partition describes one alignment partition of the dataset.
type Partition struct {
	Name     string
	Length   int
	DataType string // defaults to "nucleotide"
	Model    model.Spec
}

// States returns the size of the partition's character state space.
func (p Partition) States() int {
	switch p.DataType {
	case "", "nucleotide":
		return 4
	case "aminoAcid":
		return 20
	case "binary":
		return 2
	default:
		return 0
	}
}

// Taxon describes one sampled taxon: its sequences keyed by partition name,
// an optional sampling date in decimal years, and any discrete trait values.
type Taxon struct {
	Name      string
	Sequences map[string]string
	Date      float64
	HasDate   bool
	Traits    map[string]string
}

// Context is the read-only dataset description a document is bound to.
type Context struct {
	Partitions []Partition
	Taxa       []Taxon

	// ChainLength is the number of MCMC states to run; zero leaves the
	// template's chain length untouched. Samples is the number of states
	// to log over the whole chain (defaults to 10000).
	ChainLength int64
	Samples     int
}

func (c *Context) validate() error {
	if len(c.Partitions) == 0 {
		return fmt.Errorf("dataset declares no partitions")
	}
	seen := make(map[string]bool, len(c.Partitions))
	for _, p := range c.Partitions {
		if p.Name == "" {
			return fmt.Errorf("partition with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate partition name %q", p.Name)
		}
		seen[p.Name] = true
		if p.Length <= 0 {
			return fmt.Errorf("partition %q: length must be positive, got %d", p.Name, p.Length)
		}
		if p.States() == 0 {
			return fmt.Errorf("partition %q: unsupported datatype %q", p.Name, p.DataType)
		}
	}
	taxa := make(map[string]bool, len(c.Taxa))
	for _, t := range c.Taxa {
		if t.Name == "" {
			return fmt.Errorf("taxon with empty name")
		}
		if taxa[t.Name] {
			return fmt.Errorf("duplicate taxon name %q", t.Name)
		}
		taxa[t.Name] = true
	}
	return nil
}

// prefix returns the identifier prefix a partition's model elements carry in
// the assembled document: empty for single-partition datasets, the partition
// name plus a dot otherwise.
func (c *Context) prefix(p Partition) string {
	if len(c.Partitions) == 1 {
		return ""
	}
	return p.Name + "."
}

// UnmappedPartitionError reports a partition whose substitution model was
// never merged into the document being bound.
type UnmappedPartitionError struct {
	Partition string
	Model     string
}

func (e *UnmappedPartitionError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("partition %q has no substitution model assigned", e.Partition)
	}
	return fmt.Sprintf("partition %q: model %s is not present in the document", e.Partition, e.Model)
}
