// core/fasta/fasta.go
package fasta

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Genome maps chromosome name to its uppercase sequence. Loaded whole; the
// genome is only consulted for splice-site dinucleotides, so random access
// matters more than streaming.
type Genome map[string][]byte

// Load reads a (possibly gzipped) FASTA file into a Genome. Header IDs are
// truncated at the first whitespace.
func Load(path string) (Genome, error) {
	rc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	g := Genome{}
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	var id string
	var seq []byte
	flush := func() {
		if id != "" {
			g[id] = seq
		}
	}
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			id = headerID(line[1:])
			seq = nil
			continue
		}
		seq = append(seq, bytes.ToUpper(bytes.TrimSpace(line))...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("fasta %s: %w", path, err)
	}
	flush()
	if len(g) == 0 {
		return nil, fmt.Errorf("fasta %s: no sequences", path)
	}
	return g, nil
}

// Slice returns genome[chrom][start:end), or nil when the chromosome is
// unknown or the interval is out of bounds.
func (g Genome) Slice(chrom string, start, end int) []byte {
	seq, ok := g[chrom]
	if !ok || start < 0 || end > len(seq) || end <= start {
		return nil
	}
	return seq[start:end]
}

func headerID(b []byte) string {
	s := string(bytes.TrimSpace(b))
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

type gzReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (g *gzReadCloser) Close() error {
	var err error
	for _, c := range g.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func open(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(fh)
		if err != nil {
			_ = fh.Close()
			return nil, err
		}
		return &gzReadCloser{Reader: gr, closers: []io.Closer{gr, fh}}, nil
	}
	return fh, nil
}
