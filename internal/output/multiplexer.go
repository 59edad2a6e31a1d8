// internal/output/multiplexer.go
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"

	"igia-core/element"
	"igia-core/region"
	"igia-core/transcript"
)

// Multiplexer owns the ten categorized output streams of one run, rooted at
// one directory. Open acquires all streams as a unit (a partial open is
// rolled back); Close flushes and closes everything and is idempotent, so it
// is safe to defer on every exit path including fatal termination.
//
// Streams are single-writer: callers must serialize writes externally (the
// scheduler's committing collector is that single writer).
type Multiplexer struct {
	dir string

	files   []*os.File
	element map[element.Kind]*bufio.Writer
	isoform map[transcript.Category]*bufio.Writer

	mu      sync.Mutex
	timeout *os.File
	closed  bool
}

// Open creates dir if absent and opens all ten streams for writing,
// truncating prior content. On any failure every already-opened stream is
// closed and the error returned; no half-open multiplexer escapes.
func Open(dir string) (*Multiplexer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("output: create %s: %w", dir, err)
	}
	m := &Multiplexer{
		dir:     dir,
		element: make(map[element.Kind]*bufio.Writer, len(ElementFiles)),
		isoform: make(map[transcript.Category]*bufio.Writer, len(IsoformFiles)),
	}
	open := func(name string) (*bufio.Writer, error) {
		fh, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		m.files = append(m.files, fh)
		return bufio.NewWriter(fh), nil
	}

	for _, k := range []element.Kind{element.Intron, element.InternalExon, element.TSSExon, element.TESExon} {
		w, err := open(ElementFiles[k])
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("output: open %s: %w", ElementFiles[k], err)
		}
		m.element[k] = w
	}
	for _, c := range transcript.Categories {
		w, err := open(IsoformFiles[c])
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("output: open %s: %w", IsoformFiles[c], err)
		}
		m.isoform[c] = w
	}
	return m, nil
}

// Dir returns the output directory.
func (m *Multiplexer) Dir() string { return m.dir }

// ElementStreams returns the four element streams keyed by kind.
func (m *Multiplexer) ElementStreams() map[element.Kind]io.Writer {
	out := make(map[element.Kind]io.Writer, len(m.element))
	for k, w := range m.element {
		out[k] = w
	}
	return out
}

// IsoformStreams returns the six isoform streams keyed by category.
func (m *Multiplexer) IsoformStreams() map[transcript.Category]io.Writer {
	out := make(map[transcript.Category]io.Writer, len(m.isoform))
	for c, w := range m.isoform {
		out[c] = w
	}
	return out
}

// WriteElement appends one element record labeled with its cluster id.
func (m *Multiplexer) WriteElement(chrom string, e element.Element, label string) error {
	w, ok := m.element[e.Kind]
	if !ok {
		return fmt.Errorf("output: no stream for element kind %s", e.Kind)
	}
	_, err := w.WriteString(elementLine(chrom, e, label))
	return err
}

// WriteIsoform appends one isoform record labeled with its cluster-derived
// label.
func (m *Multiplexer) WriteIsoform(iso transcript.Isoform, label string) error {
	w, ok := m.isoform[iso.Category]
	if !ok {
		return fmt.Errorf("output: no stream for isoform category %s", iso.Category)
	}
	_, err := w.WriteString(isoformLine(iso, label))
	return err
}

// LogTimeout appends one line to the durable timeout log: timestamp, the
// configured deadline, and the region that exceeded it. The log is opened
// lazily and each line is written straight to the file, not buffered.
func (m *Multiplexer) LogTimeout(reg region.Region, deadline time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("output: timeout log after close")
	}
	if m.timeout == nil {
		fh, err := os.OpenFile(filepath.Join(m.dir, TimeoutLogFile),
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("output: open timeout log: %w", err)
		}
		m.timeout = fh
	}
	_, err := fmt.Fprintf(m.timeout, "%s\tTimeOut (%s)\t%s\t%d\t%d\n",
		time.Now().UTC().Format(time.RFC3339), deadline, reg.Chrom, reg.Start, reg.End)
	return err
}

// Close flushes and closes every stream exactly once. Later calls are
// no-ops. All flush and close errors are aggregated.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	for _, w := range m.element {
		err = multierr.Append(err, w.Flush())
	}
	for _, w := range m.isoform {
		err = multierr.Append(err, w.Flush())
	}
	for _, fh := range m.files {
		err = multierr.Append(err, fh.Close())
	}
	if m.timeout != nil {
		err = multierr.Append(err, m.timeout.Close())
	}
	return err
}
