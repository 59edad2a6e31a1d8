package evidence

import (
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"igia-core/region"
)

const sample = `# chrom	start	end	strand	blockSizes	blockStarts
chr1	100	500	+	100,80	0,320
chr1	120	200	+
chr2	50	90	-
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestScanParsesBlocks(t *testing.T) {
	src := NewSource(writeFile(t, "ngs.tsv", sample), NGS)

	var got []Alignment
	err := src.Scan(context.Background(), func(a Alignment) error {
		got = append(got, a)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d alignments, want 3", len(got))
	}

	spliced := got[0]
	if !spliced.Spliced() {
		t.Fatal("first alignment should be spliced")
	}
	wantBlocks := []region.Span{{Start: 100, End: 200}, {Start: 420, End: 500}}
	for i, b := range spliced.Blocks {
		if b != wantBlocks[i] {
			t.Errorf("block %d = %+v, want %+v", i, b, wantBlocks[i])
		}
	}

	single := got[1]
	if single.Spliced() || len(single.Blocks) != 1 {
		t.Errorf("second alignment should be a single block, got %+v", single.Blocks)
	}
	if got[2].Strand != '-' {
		t.Errorf("third alignment strand = %q, want '-'", string(got[2].Strand))
	}
}

func TestScanGzip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tgs.tsv.gz")
	fh, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(fh)
	if _, err := gz.Write([]byte("chr1\t10\t20\t+\n")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := fh.Close(); err != nil {
		t.Fatal(err)
	}

	n := 0
	err = NewSource(p, TGS).Scan(context.Background(), func(a Alignment) error {
		n++
		if a.Class != TGS {
			t.Errorf("class = %s, want TGS", a.Class)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan gz: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d alignments, want 1", n)
	}
}

func TestScanRejectsMalformed(t *testing.T) {
	cases := []struct {
		name, body string
	}{
		{"field count", "chr1\t1\t2\n"},
		{"end before start", "chr1\t20\t10\t+\n"},
		{"bad strand", "chr1\t10\t20\tx\n"},
		{"blocks beyond end", "chr1\t10\t20\t+\t30\t0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := NewSource(writeFile(t, "bad.tsv", tc.body), NGS)
			err := src.Scan(context.Background(), func(Alignment) error { return nil })
			if err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestScanHonorsContext(t *testing.T) {
	src := NewSource(writeFile(t, "n.tsv", sample), NGS)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := src.Scan(ctx, func(Alignment) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFetchFilters(t *testing.T) {
	src := NewSource(writeFile(t, "n.tsv", sample), NGS)
	alns, err := src.Fetch(context.Background(), region.Region{Chrom: "chr2", Start: 0, End: 100})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(alns) != 1 || alns[0].Chrom != "chr2" {
		t.Fatalf("fetch = %+v, want the single chr2 alignment", alns)
	}
}
