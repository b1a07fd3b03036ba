// Package model maps canonical substitution-model names to the template
// fragments that implement them.
//
// The catalogue is closed: each supported model family has one fragment
// declaring its rate matrix, site model, operators, priors and log entries,
// and rate constraints within a family (TN93's shared transversion rate,
// K3P's two transversion classes) are baked into the fragment as shared
// idrefs rather than special-cased in code. Companion fragments add
// frequency estimation, gamma rate variation and a proportion of invariant
// sites on top of any family.
package model

import (
	"fmt"
	"strings"
)

// Frequencies selects how a model's base frequencies are obtained.
type Frequencies string

const (
	// FrequenciesEstimated samples frequencies during the MCMC run; the
	// estimated-frequencies companion fragment supplies the operator and
	// prior this requires.
	FrequenciesEstimated Frequencies = "estimated"
	// FrequenciesEmpirical fixes frequencies to those observed in the
	// alignment, which BEAST computes at initialisation.
	FrequenciesEmpirical Frequencies = "empirical"
	// FrequenciesEqual fixes all frequencies to 0.25.
	FrequenciesEqual Frequencies = "equal"
)

// UnknownModelError reports a model name outside the catalogue.
type UnknownModelError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown substitution model %q", e.Name)
}

// Spec is a complete substitution-model selection: the family plus the
// modifiers that shape its site model.
type Spec struct {
	// Name is the canonical model name (JC69, F81, K80, HKY, K3P, TN93,
	// TIM, TVM, SYM or GTR).
	Name string
	// Frequencies picks the base-frequency treatment. Models defined with
	// equal frequencies (JC69, K80, K3P, SYM) only accept FrequenciesEqual.
	Frequencies Frequencies
	// GammaCategories is the number of gamma rate-variation categories,
	// 0 for no rate variation.
	GammaCategories int
	// ProportionInvariant adds an invariant-sites proportion to the site
	// model.
	ProportionInvariant bool
}

// equalFrequencyModels are the families whose definition fixes all base
// frequencies to 0.25.
var equalFrequencyModels = map[string]struct{}{
	"JC69": {},
	"K80":  {},
	"K3P":  {},
	"SYM":  {},
}

// Validate checks the spec against the catalogue before any template is
// loaded.
func (s Spec) Validate() error {
	if _, ok := modelTemplates[s.Name]; !ok {
		return &UnknownModelError{Name: s.Name}
	}
	switch s.Frequencies {
	case FrequenciesEstimated, FrequenciesEmpirical, FrequenciesEqual:
	default:
		return fmt.Errorf("invalid frequencies mode %q", s.Frequencies)
	}
	if _, equal := equalFrequencyModels[s.Name]; equal && s.Frequencies != FrequenciesEqual {
		return fmt.Errorf("model %s is defined with equal base frequencies, cannot use %q", s.Name, s.Frequencies)
	}
	if s.GammaCategories < 0 {
		return fmt.Errorf("gamma category count must not be negative, got %d", s.GammaCategories)
	}
	return nil
}

// String renders the spec in the conventional notation, e.g.
// "HKY+G4+I (estimated frequencies)".
func (s Spec) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	if s.GammaCategories > 0 {
		fmt.Fprintf(&b, "+G%d", s.GammaCategories)
	}
	if s.ProportionInvariant {
		b.WriteString("+I")
	}
	fmt.Fprintf(&b, " (%s frequencies)", s.Frequencies)
	return b.String()
}
