package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/beastgen/internal/assemble"
	"github.com/vk/beastgen/internal/ctxlog"
	"github.com/vk/beastgen/internal/iqtree"
	"github.com/vk/beastgen/internal/manifest"
	"github.com/vk/beastgen/internal/merge"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle. Logs go to logW so the assembled document can stream to stdout
// untouched.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger.
func NewApp(outW, logW io.Writer, config *Config) *App {
	logger := newLogger(config.LogLevel, config.LogFormat, logW)
	return &App{outW: outW, logger: logger, config: config}
}

// Run executes one assembly: manifest in, validated run document out.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	m, err := manifest.Load(ctx, a.config.ManifestPath)
	if err != nil {
		return err
	}

	if a.config.ModelTestPath != "" {
		res, err := iqtree.ReadModelTestFile(ctx, a.config.ModelTestPath)
		if err != nil {
			return err
		}
		if err := m.ApplyModelTest(ctx, res); err != nil {
			return err
		}
	}

	policy := merge.RenameIncoming
	if a.config.RenamePolicy == "existing" {
		policy = merge.RenameExisting
	}

	assembler, err := assemble.New(assemble.Options{
		TemplateDir: a.config.TemplateDir,
		Policy:      policy,
		Linkage:     m.Linkage,
	})
	if err != nil {
		return err
	}

	doc, err := assembler.Assemble(ctx, &m.Data)
	if err != nil {
		return err
	}

	if a.config.OutputPath != "" {
		if err := doc.WriteFile(a.config.OutputPath); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		a.logger.Info("run configuration written", "path", a.config.OutputPath)
		return nil
	}
	return doc.WriteTo(a.outW)
}
