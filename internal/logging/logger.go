// Package logging builds the process-wide zerolog logger. Every command
// and the API server go through New so log shape stays uniform.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger at the configured level. Local environments get
// human-readable console output; everything else emits JSON lines.
func New(environment, level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse LOG_LEVEL=%q: %w", level, err)
	}

	var out io.Writer = os.Stdout
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(parsed).
		With().
		Timestamp().
		Str("service", "narratives").
		Logger(), nil
}
