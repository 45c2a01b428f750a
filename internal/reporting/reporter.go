// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/regflow/internal/flow"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Reporter defines the interface for writing run results to an output.
type Reporter interface {
	// Write emits a single run result.
	Write(result flow.RunResult) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path. An empty
// path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	if format != FormatJSON && format != FormatText {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer)
}

// NewWithWriter creates a reporter that takes ownership of writer.
func NewWithWriter(format string, writer io.WriteCloser) (Reporter, error) {
	switch format {
	case FormatJSON:
		return &jsonReporter{writer: writer, enc: json.ConfigCompatibleWithStandardLibrary.NewEncoder(writer)}, nil
	case FormatText:
		return &textReporter{writer: writer}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// jsonReporter writes one JSON object per line. It is safe for concurrent use.
type jsonReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	enc    *json.Encoder
}

func (r *jsonReporter) Write(result flow.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result %s: %w", result.RunID, err)
	}
	return nil
}

func (r *jsonReporter) Close() error {
	return r.writer.Close()
}

// textReporter writes a single human readable line per result.
type textReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
}

func (r *textReporter) Write(result flow.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := io.WriteString(r.writer, FormatLine(result)+"\n"); err != nil {
		return fmt.Errorf("failed to write result %s: %w", result.RunID, err)
	}
	return nil
}

func (r *textReporter) Close() error {
	return r.writer.Close()
}

// FormatLine renders a result as a single line, e.g.
//
//	[success] a+x1@b.co 42.5s https://b.co/dashboard "registration succeeded" evidence=reg.png
func FormatLine(r flow.RunResult) string {
	line := fmt.Sprintf("[%s] %s %.1fs %s %q", r.Status, r.Identity, r.DurationSeconds, orDash(r.URL), r.Message)
	if r.Evidence != "" {
		line += " evidence=" + r.Evidence
	}
	return line
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
