// Package bind rewrites an assembled run document so its data-dependent
// quantities match a concrete dataset: taxa and sampling dates, one alignment
// and site-pattern block per partition, likelihood partition wiring, relative
// rates across partitions, chain length, and discrete trait data.
package bind
