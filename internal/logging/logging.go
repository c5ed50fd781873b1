// Package logging wires the process's structured logger: one zerolog
// logger per node process, with the node id attached to every line.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewNodeLogger returns a console-pretty logger tagged with node_id,
// suitable for a single kvnode process's lifetime.
func NewNodeLogger(nodeID int) zerolog.Logger {
	return newLogger(os.Stdout).With().Int("node_id", nodeID).Logger()
}

// NewLogger returns a console-pretty logger with no extra fields, used
// by cmd/nodectl and tests.
func NewLogger() zerolog.Logger {
	return newLogger(os.Stdout)
}

func newLogger(w io.Writer) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).With().Timestamp().Logger()
}
