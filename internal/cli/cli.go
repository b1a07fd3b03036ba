package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/beastgen/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("beastgen", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
beastgen - assembles BEAST run configurations from model templates and a
dataset manifest.

Usage:
  beastgen [options] [MANIFEST_PATH]

Arguments:
  MANIFEST_PATH
    Path to the dataset manifest (.hcl).

Options:
`)
		flagSet.PrintDefaults()
	}

	manifestFlag := flagSet.String("manifest", "", "Path to the dataset manifest.")
	mFlag := flagSet.String("m", "", "Path to the dataset manifest (shorthand).")
	outFlag := flagSet.String("out", "", "Path to write the assembled XML to. Empty writes to stdout.")
	modelTestFlag := flagSet.String("model-test", "", "Path to an IQ-TREE model-test report (.best_scheme.nex) supplying per-partition models.")
	templatesFlag := flagSet.String("templates", "", "Directory of template .xml files overlaying the built-in catalogue.")
	renameFlag := flagSet.String("rename-policy", "incoming", "Side renamed on an identifier collision. Options: 'incoming' or 'existing'.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *manifestFlag != "" {
		path = *manifestFlag
	} else if *mFlag != "" {
		path = *mFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	renamePolicy := strings.ToLower(*renameFlag)
	if renamePolicy != "incoming" && renamePolicy != "existing" {
		return nil, false, &ExitError{Code: 2, Message: "invalid rename-policy: must be 'incoming' or 'existing'"}
	}

	config, err := app.NewConfig(app.Config{
		ManifestPath:  path,
		OutputPath:    *outFlag,
		ModelTestPath: *modelTestFlag,
		TemplateDir:   *templatesFlag,
		RenamePolicy:  renamePolicy,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
