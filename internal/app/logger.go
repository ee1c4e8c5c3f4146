package app

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(level string, json bool, out io.Writer) hclog.Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "seedpool",
		Level:      lvl,
		Output:     out,
		JSONFormat: json,
	})
}
