// core/evidence/scan.go
package evidence

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"igia-core/region"
)

// Alignment TSV layout:
//
//	chrom  start  end  strand  [blockSizes  blockStarts]
//
// blockSizes/blockStarts are comma-separated, blockStarts relative to start
// (BED-style). Lines starting with '#' and blank lines are skipped.

// multiReadCloser closes every underlying closer once.
type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var err error
	for _, c := range m.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// openReader opens path, transparently decompressing gzip (by magic number
// or .gz suffix). "-" reads stdin.
func openReader(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var sig [2]byte
	n, _ := fh.Read(sig[:])
	_, _ = fh.Seek(0, io.SeekStart)
	if (n == 2 && sig[0] == 0x1f && sig[1] == 0x8b) || strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(fh)
		if err != nil {
			_ = fh.Close()
			return nil, err
		}
		return &multiReadCloser{Reader: gr, closers: []io.Closer{gr, fh}}, nil
	}
	return fh, nil
}

// Scan streams every alignment in the source through emit. Cancellation via
// ctx is honored between lines. Returning a non-nil error from emit stops
// the scan and propagates that error.
func (s *Source) Scan(ctx context.Context, emit func(Alignment) error) error {
	rc, err := openReader(s.Path)
	if err != nil {
		return fmt.Errorf("evidence %s: %w", s.Path, err)
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		aln, err := parseLine(line, s.Class)
		if err != nil {
			return fmt.Errorf("evidence %s:%d: %w", s.Path, lineNo, err)
		}
		if err := emit(aln); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("evidence %s: scan: %w", s.Path, err)
	}
	return nil
}

// Fetch returns the alignments overlapping reg, in file order.
func (s *Source) Fetch(ctx context.Context, reg region.Region) ([]Alignment, error) {
	var out []Alignment
	err := s.Scan(ctx, func(a Alignment) error {
		if reg.Overlaps(a.Chrom, a.Start, a.End) {
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseLine(line string, class Class) (Alignment, error) {
	f := strings.Split(line, "\t")
	if len(f) != 4 && len(f) != 6 {
		return Alignment{}, fmt.Errorf("expected 4 or 6 fields, got %d", len(f))
	}
	start, err := strconv.Atoi(f[1])
	if err != nil {
		return Alignment{}, fmt.Errorf("bad start %q", f[1])
	}
	end, err := strconv.Atoi(f[2])
	if err != nil {
		return Alignment{}, fmt.Errorf("bad end %q", f[2])
	}
	if len(f[3]) != 1 {
		return Alignment{}, fmt.Errorf("bad strand %q", f[3])
	}
	a := Alignment{
		Chrom:  f[0],
		Start:  start,
		End:    end,
		Strand: f[3][0],
		Class:  class,
	}
	if len(f) == 6 {
		blocks, err := parseBlocks(start, f[4], f[5])
		if err != nil {
			return Alignment{}, err
		}
		a.Blocks = blocks
	} else {
		a.Blocks = []region.Span{{Start: start, End: end}}
	}
	if err := a.validate(); err != nil {
		return Alignment{}, err
	}
	return a, nil
}

func parseBlocks(start int, sizes, starts string) ([]region.Span, error) {
	ss := splitInts(sizes)
	st := splitInts(starts)
	if ss == nil || st == nil || len(ss) != len(st) || len(ss) == 0 {
		return nil, fmt.Errorf("bad blocks %q / %q", sizes, starts)
	}
	blocks := make([]region.Span, len(ss))
	for i := range ss {
		blocks[i] = region.Span{Start: start + st[i], End: start + st[i] + ss[i]}
	}
	return blocks, nil
}

func splitInts(s string) []int {
	parts := strings.Split(strings.TrimSuffix(s, ","), ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}
