// Package iqtree reads IQ-TREE model-test reports (*.best_scheme.nex) and
// reduces them to canonical substitution-model specs plus site partitions.
// Only DNA models are supported.
package iqtree

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/vk/beastgen/internal/ctxlog"
	"github.com/vk/beastgen/internal/model"
)

// Result is the outcome of a model test: the chosen substitution model and
// the alignment columns covered, per partition.
type Result struct {
	Models     map[string]model.Spec
	Partitions map[string][]int
}

// nameTranslation maps IQ-TREE model names onto our canonical names. Names
// already canonical pass through unchanged.
var nameTranslation = map[string]string{
	"JC":    "JC69",
	"K2P":   "K80",
	"HKY85": "HKY",
	"TN":    "TN93",
	"K81":   "K3P",
}

// Frequency classes per iqtree.org/doc/Substitution-Models. These include
// model families our catalogue does not carry; classification happens before
// the catalogue check so the error for an unsupported family names the model
// rather than a frequency conflict.
var (
	equalFrequencyNames   = set("JC", "JC69", "K80", "K2P", "K81", "K3P", "TPM2", "TPM3", "SYM")
	unequalFrequencyNames = set("F81", "HKY", "HKY85", "TN", "TN93", "TIM", "TIM2", "TIM3", "TVM", "GTR")
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// ReadModelTestFile reads a model-test report from disk.
func ReadModelTestFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading model test: %w", err)
	}
	defer f.Close()
	res, err := ReadModelTest(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("reading model test %s: %w", path, err)
	}
	return res, nil
}

// ReadModelTest parses a nexus-format model-test report: the charset lines of
// the sets block define the partitions, the charpartition lines assign each
// partition its model.
func ReadModelTest(ctx context.Context, r io.Reader) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	res := &Result{
		Models:     make(map[string]model.Spec),
		Partitions: make(map[string][]int),
	}

	inPartitions := false
	inModels := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "BEGIN SETS;"):
			inPartitions = true
			inModels = false

		case inPartitions && strings.HasPrefix(strings.TrimSpace(upper), "CHARPARTITION"):
			inPartitions = false
			inModels = true

		case strings.HasPrefix(upper, "END;"):
			return res, nil

		case inPartitions:
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if !strings.HasPrefix(strings.ToUpper(trimmed), "CHARSET") {
				logger.Warn("ignoring invalid line in partition definitions", "line", trimmed)
				continue
			}
			name, sites, err := parseCharset(trimmed)
			if err != nil {
				return nil, err
			}
			res.Partitions[name] = sites

		case inModels:
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			modelString, name, ok := strings.Cut(trimmed, ":")
			if !ok {
				return nil, fmt.Errorf("invalid model assignment line %q", trimmed)
			}
			name = strings.TrimSpace(strings.Trim(strings.TrimSpace(name), ",;"))
			spec, err := ParseModel(ctx, strings.TrimSpace(modelString))
			if err != nil {
				return nil, fmt.Errorf("partition %s: %w", name, err)
			}
			res.Models[name] = spec
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// parseCharset splits "charset gene1 = 1-500;" into the partition name and
// its alignment columns.
func parseCharset(line string) (string, []int, error) {
	rest := strings.TrimSpace(line[len("charset"):])
	name, def, ok := strings.Cut(rest, "=")
	if !ok {
		return "", nil, fmt.Errorf("invalid charset line %q", line)
	}
	name = strings.TrimSpace(name)
	sites, err := parseSites(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(def), ";")))
	if err != nil {
		return "", nil, fmt.Errorf("charset %s: %w", name, err)
	}
	return name, sites, nil
}

var whitespace = regexp.MustCompile(`[ ]+`)

// parseSites expands an IQ-TREE partition string into the indices of the
// alignment columns it covers. Components are single columns or ranges, and
// a range ending in `\3` strides by codon position.
func parseSites(s string) ([]int, error) {
	var sites []int
	for _, component := range whitespace.Split(s, -1) {
		start, end, isRange := strings.Cut(component, "-")
		if !isRange {
			n, err := strconv.Atoi(component)
			if err != nil {
				return nil, fmt.Errorf("invalid site %q", component)
			}
			sites = append(sites, n)
			continue
		}
		step := 1
		if stripped, ok := strings.CutSuffix(end, `\3`); ok {
			end = stripped
			step = 3
		}
		from, err := strconv.Atoi(start)
		if err != nil {
			return nil, fmt.Errorf("invalid site range %q", component)
		}
		to, err := strconv.Atoi(end)
		if err != nil {
			return nil, fmt.Errorf("invalid site range %q", component)
		}
		for i := from; i <= to; i += step {
			sites = append(sites, i)
		}
	}
	return sites, nil
}

// ParseModel translates an IQ-TREE model string such as "HKY+F+G4" or
// "TNe+I" into a substitution-model spec. FreeRate variation (+R) is not
// expressible downstream and is downgraded to gamma with a warning.
func ParseModel(ctx context.Context, s string) (model.Spec, error) {
	components := strings.Split(s, "+")
	name, class := translateName(strings.TrimSpace(components[0]))

	spec := model.Spec{Name: name, Frequencies: model.FrequenciesEqual}
	if class == classUnequal {
		// IQ-TREE defaults to empirical frequencies for unequal-frequency
		// models.
		spec.Frequencies = model.FrequenciesEmpirical
	}

	for _, modifier := range components[1:] {
		switch {
		case strings.HasPrefix(modifier, "F"):
			freq, err := parseFrequencies(modifier)
			if err != nil {
				return model.Spec{}, err
			}
			spec.Frequencies = freq
		case strings.HasPrefix(modifier, "G"), strings.HasPrefix(modifier, "R"):
			categories, err := parseRateVariation(ctx, modifier)
			if err != nil {
				return model.Spec{}, err
			}
			spec.GammaCategories = categories
		case modifier == "I":
			spec.ProportionInvariant = true
		default:
			return model.Spec{}, fmt.Errorf("unrecognized model modifier %q in %q", modifier, s)
		}
	}

	if class == classEqual && spec.Frequencies != model.FrequenciesEqual {
		return model.Spec{}, fmt.Errorf("model %q implies equal frequencies but %q declares otherwise", name, s)
	}
	if class == classUnequal && spec.Frequencies == model.FrequenciesEqual {
		return model.Spec{}, fmt.Errorf("model %q implies unequal frequencies but %q declares them equal", name, s)
	}
	if err := spec.Validate(); err != nil {
		return model.Spec{}, err
	}
	return spec, nil
}

type frequencyClass int

const (
	classNone frequencyClass = iota
	classEqual
	classUnequal
)

// translateName canonicalizes an IQ-TREE model name. An "e" or "u" suffix
// (TNe, TIMe) is IQ-TREE's own frequency shorthand and classifies the name
// before translation. Whether the result is a model the catalogue carries is
// left to spec validation.
func translateName(name string) (string, frequencyClass) {
	class := classNone
	switch {
	case equalFrequencyNames[name]:
		class = classEqual
	case unequalFrequencyNames[name]:
		class = classUnequal
	case strings.HasSuffix(name, "e"):
		class = classEqual
		name = strings.TrimSuffix(name, "e")
	case strings.HasSuffix(name, "u"):
		class = classUnequal
		name = strings.TrimSuffix(name, "u")
	}

	if translated, ok := nameTranslation[name]; ok {
		name = translated
	}
	return name, class
}

func parseFrequencies(s string) (model.Frequencies, error) {
	switch s {
	case "F":
		return model.FrequenciesEmpirical, nil
	case "FQ":
		return model.FrequenciesEqual, nil
	case "FO":
		return model.FrequenciesEstimated, nil
	default:
		return "", fmt.Errorf("unrecognized frequency modifier %q", s)
	}
}

func parseRateVariation(ctx context.Context, s string) (int, error) {
	if strings.HasPrefix(s, "R") {
		ctxlog.FromContext(ctx).Warn(
			"FreeRate rate variation is not supported downstream, using gamma-distributed rates instead",
			"modifier", s)
	}
	digits := strings.TrimLeft(s, "GR")
	if digits == "" {
		return 4, nil
	}
	categories, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("unrecognized rate variation modifier %q", s)
	}
	return categories, nil
}
