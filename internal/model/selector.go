package model

import (
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vk/beastgen/internal/ctxlog"
	"github.com/vk/beastgen/internal/fsutil"
	"github.com/vk/beastgen/internal/xmltree"
)

//go:embed templates/*.xml
var embeddedTemplates embed.FS

// modelTemplates maps canonical model names to their template files.
var modelTemplates = map[string]string{
	"JC69": "jc69.xml",
	"F81":  "f81.xml",
	"K80":  "k80.xml",
	"HKY":  "hky.xml",
	"K3P":  "k3p.xml",
	"TN93": "tn93.xml",
	"TIM":  "tim.xml",
	"TVM":  "tvm.xml",
	"SYM":  "sym.xml",
	"GTR":  "gtr.xml",
}

// Companion and skeleton template files.
const (
	skeletonFile             = "skeleton.xml"
	estimatedFrequenciesFile = "estimated_frequencies.xml"
	gammaFile                = "gamma.xml"
	proportionInvariantFile  = "proportion_invariant.xml"
)

// Fragment pairs a freshly parsed template document with the name used when
// reporting merge errors. Frequencies marks the estimated-frequencies
// companion, which acts on the frequencies parameter and therefore merges
// only once when frequencies are shared across partitions.
type Fragment struct {
	Name        string
	Doc         *xmltree.Document
	Frequencies bool
}

// Selector resolves model specs to the sequence of template fragments that
// must be merged into the skeleton. Templates are parsed fresh per call, so
// fragments handed out are never shared.
type Selector struct {
	// overrides maps a template file name to an on-disk path that replaces
	// the embedded copy.
	overrides map[string]string
}

// NewSelector returns a selector serving the embedded template catalogue.
func NewSelector() *Selector {
	return &Selector{}
}

// UseTemplateDir overlays the embedded catalogue with the .xml files found
// under dir: any file whose base name matches a catalogue entry replaces the
// embedded copy.
func (s *Selector) UseTemplateDir(dir string) error {
	paths, err := fsutil.FindFilesByExtension(dir, ".xml")
	if err != nil {
		return fmt.Errorf("scanning template directory: %w", err)
	}
	if s.overrides == nil {
		s.overrides = make(map[string]string)
	}
	for _, p := range paths {
		s.overrides[filepath.Base(p)] = p
	}
	return nil
}

// Skeleton returns a fresh parse of the base run document every assembly
// starts from.
func (s *Selector) Skeleton() (*xmltree.Document, error) {
	return s.load(skeletonFile)
}

// Select returns the fragments implementing spec, in merge order: the model
// family fragment first (with its frequency treatment already applied), then
// the estimated-frequencies, gamma and invariant-sites companions as the
// spec requires.
func (s *Selector) Select(ctx context.Context, spec Spec) ([]Fragment, error) {
	logger := ctxlog.FromContext(ctx)

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	file := modelTemplates[spec.Name]
	doc, err := s.load(file)
	if err != nil {
		return nil, err
	}
	if err := applyFrequencyMode(doc, spec.Frequencies); err != nil {
		return nil, fmt.Errorf("template %s: %w", file, err)
	}
	fragments := []Fragment{{Name: file, Doc: doc}}

	if spec.Frequencies == FrequenciesEstimated {
		companion, err := s.load(estimatedFrequenciesFile)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, Fragment{Name: estimatedFrequenciesFile, Doc: companion, Frequencies: true})
	}

	if spec.GammaCategories > 0 {
		companion, err := s.load(gammaFile)
		if err != nil {
			return nil, err
		}
		if spec.GammaCategories != 4 {
			shape := companion.Root.Descend("siteModel", "gammaShape")
			if shape == nil {
				return nil, fmt.Errorf("template %s: no gammaShape block", gammaFile)
			}
			shape.SetAttr("gammaCategories", strconv.Itoa(spec.GammaCategories))
		}
		fragments = append(fragments, Fragment{Name: gammaFile, Doc: companion})
	}

	if spec.ProportionInvariant {
		companion, err := s.load(proportionInvariantFile)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, Fragment{Name: proportionInvariantFile, Doc: companion})
	}

	names := make([]string, len(fragments))
	for i, f := range fragments {
		names[i] = f.Name
	}
	logger.Debug("model fragments selected", "model", spec.String(), "fragments", strings.Join(names, ","))
	return fragments, nil
}

func (s *Selector) load(name string) (*xmltree.Document, error) {
	if path, ok := s.overrides[name]; ok {
		return xmltree.ParseFile(path)
	}
	data, err := embeddedTemplates.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("reading embedded template %s: %w", name, err)
	}
	doc, err := xmltree.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}
	return doc, nil
}
