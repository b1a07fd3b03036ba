// Package app wires the assembly pipeline together for one CLI invocation:
// it configures logging, loads the dataset manifest and optional model-test
// report, runs the assembler, and writes the resulting document.
package app
