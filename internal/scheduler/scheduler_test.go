package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"igia-core/element"
	"igia-core/region"
	"igia-core/transcript"
	"igia/internal/common"
	"igia/internal/output"
)

type identifyFunc func(ctx context.Context, reg region.Region) ([]*element.GeneCluster, error)

func (f identifyFunc) Identify(ctx context.Context, reg region.Region) ([]*element.GeneCluster, error) {
	return f(ctx, reg)
}

type assembleFunc func(ctx context.Context, c *element.GeneCluster) (*transcript.Set, error)

func (f assembleFunc) Assemble(ctx context.Context, c *element.GeneCluster) (*transcript.Set, error) {
	return f(ctx, c)
}

func oneCluster(reg region.Region) []*element.GeneCluster {
	return []*element.GeneCluster{{
		Chrom:  reg.Chrom,
		Strand: '+',
		Start:  reg.Start,
		End:    reg.End,
		Elements: []element.Element{{
			Kind: element.TSSExon, Span: reg.Span(), Strand: '+', Support: 1,
		}},
	}}
}

func oneIsoform(c *element.GeneCluster) *transcript.Set {
	return &transcript.Set{Isoforms: []transcript.Isoform{{
		Chrom: c.Chrom, Strand: c.Strand, Start: c.Start, End: c.End,
		Blocks:   []region.Span{{Start: c.Start, End: c.End}},
		Category: transcript.IsoF, Support: 1,
	}}}
}

func seq(regs ...region.Region) RegionSeq {
	return func(emit func(region.Region) error) error {
		for _, r := range regs {
			if err := emit(r); err != nil {
				return err
			}
		}
		return nil
	}
}

func labelsOf(t *testing.T, dir, file string) []string {
	t.Helper()
	body, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		t.Fatalf("read %s: %v", file, err)
	}
	var labels []string
	for _, line := range strings.Split(strings.TrimRight(string(body), "\n"), "\n") {
		if line == "" {
			continue
		}
		f := strings.Split(line, "\t")
		labels = append(labels, f[len(f)-1])
	}
	return labels
}

func run(t *testing.T, opts Options, regs RegionSeq, id ElementIdentifier, tx TranscriptAssembler) (string, error) {
	t.Helper()
	dir := t.TempDir()
	out, err := output.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	var ids common.ClusterNumberer
	perr := New(opts, &ids, out, id, tx).Process(context.Background(), regs)
	if cerr := out.Close(); cerr != nil {
		t.Fatalf("close: %v", cerr)
	}
	return dir, perr
}

func TestProcessWritesClustersInOrder(t *testing.T) {
	regs := seq(
		region.Region{Chrom: "chr1", Start: 100, End: 500},
		region.Region{Chrom: "chr1", Start: 1000, End: 1500},
	)
	dir, err := run(t, Options{},
		regs,
		identifyFunc(func(_ context.Context, r region.Region) ([]*element.GeneCluster, error) {
			return oneCluster(r), nil
		}),
		assembleFunc(func(_ context.Context, c *element.GeneCluster) (*transcript.Set, error) {
			return oneIsoform(c), nil
		}),
	)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	got := labelsOf(t, dir, output.ElementFiles[element.TSSExon])
	if len(got) != 2 || got[0] != "c_1" || got[1] != "c_2" {
		t.Fatalf("element labels = %v, want [c_1 c_2]", got)
	}
	iso := labelsOf(t, dir, output.IsoformFiles[transcript.IsoF])
	if len(iso) != 2 || iso[0] != "c_1.F1" || iso[1] != "c_2.F1" {
		t.Fatalf("isoform labels = %v, want [c_1.F1 c_2.F1]", iso)
	}
}

// Three regions, the middle one exceeding a 1-second deadline: output must
// contain ids from regions 1 and 3 only, with no gap, and the timeout log
// must name region 2 and the deadline.
func TestTimeoutRegionIsAllOrNothing(t *testing.T) {
	slow := region.Region{Chrom: "chr2", Start: 7000, End: 9000}
	regs := seq(
		region.Region{Chrom: "chr1", Start: 100, End: 500},
		slow,
		region.Region{Chrom: "chr3", Start: 10, End: 90},
	)
	dir, err := run(t, Options{Deadline: time.Second},
		regs,
		identifyFunc(func(ctx context.Context, r region.Region) ([]*element.GeneCluster, error) {
			if r == slow {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return oneCluster(r), nil
		}),
		assembleFunc(func(_ context.Context, c *element.GeneCluster) (*transcript.Set, error) {
			return oneIsoform(c), nil
		}),
	)
	if err != nil {
		t.Fatalf("timeouts must not fail the run: %v", err)
	}

	got := labelsOf(t, dir, output.ElementFiles[element.TSSExon])
	if len(got) != 2 || got[0] != "c_1" || got[1] != "c_2" {
		t.Fatalf("labels = %v, want gapless [c_1 c_2] despite the timeout", got)
	}

	body, err := os.ReadFile(filepath.Join(dir, output.TimeoutLogFile))
	if err != nil {
		t.Fatalf("timeout log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("timeout log has %d lines, want 1: %q", len(lines), body)
	}
	for _, want := range []string{"TimeOut (1s)", "chr2", "7000", "9000"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("timeout line %q missing %q", lines[0], want)
		}
	}
}

func TestElementFreeClusterNeverNumbered(t *testing.T) {
	reg := region.Region{Chrom: "chr1", Start: 0, End: 2000}
	var assembled atomic.Int64
	dir, err := run(t, Options{},
		seq(reg),
		identifyFunc(func(_ context.Context, r region.Region) ([]*element.GeneCluster, error) {
			withElements := oneCluster(r)[0]
			empty := &element.GeneCluster{Chrom: r.Chrom, Strand: '+', Start: 1500, End: 1900, Order: 1}
			return []*element.GeneCluster{withElements, empty}, nil
		}),
		assembleFunc(func(_ context.Context, c *element.GeneCluster) (*transcript.Set, error) {
			assembled.Add(1)
			return &transcript.Set{}, nil
		}),
	)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if assembled.Load() != 1 {
		t.Errorf("assembler called %d times, want 1 (empty cluster skipped)", assembled.Load())
	}
	got := labelsOf(t, dir, output.ElementFiles[element.TSSExon])
	if len(got) != 1 || got[0] != "c_1" {
		t.Fatalf("labels = %v, want exactly [c_1]", got)
	}
}

func TestFatalErrorStopsRunKeepsEarlierRegions(t *testing.T) {
	boom := errors.New("collaborator failure")
	bad := region.Region{Chrom: "chr1", Start: 1000, End: 1500}
	regs := seq(
		region.Region{Chrom: "chr1", Start: 100, End: 500},
		bad,
		region.Region{Chrom: "chr1", Start: 2000, End: 2500},
	)
	dir, err := run(t, Options{},
		regs,
		identifyFunc(func(_ context.Context, r region.Region) ([]*element.GeneCluster, error) {
			if r == bad {
				return nil, boom
			}
			return oneCluster(r), nil
		}),
		assembleFunc(func(_ context.Context, c *element.GeneCluster) (*transcript.Set, error) {
			return &transcript.Set{}, nil
		}),
	)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the collaborator failure", err)
	}
	// Region 1 committed before the failure stays; nothing after it commits.
	got := labelsOf(t, dir, output.ElementFiles[element.TSSExon])
	if len(got) != 1 || got[0] != "c_1" {
		t.Fatalf("labels = %v, want [c_1]", got)
	}
	// Every stream must still exist, flushed and properly terminated.
	for _, name := range output.ElementFiles {
		assertTerminated(t, dir, name)
	}
	for _, name := range output.IsoformFiles {
		assertTerminated(t, dir, name)
	}
}

func assertTerminated(t *testing.T, dir, name string) {
	t.Helper()
	body, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("stream %s: %v", name, err)
	}
	if len(body) > 0 && body[len(body)-1] != '\n' {
		t.Errorf("stream %s not newline-terminated: %q", name, body)
	}
}

func TestDeadlineRearmedPerRegion(t *testing.T) {
	// Three regions each consuming most of the budget: a timer leaking
	// across boundaries would fire spuriously.
	var regs []region.Region
	for i := 0; i < 3; i++ {
		regs = append(regs, region.Region{Chrom: "chr1", Start: i * 1000, End: i*1000 + 500})
	}
	dir, err := run(t, Options{Deadline: 100 * time.Millisecond},
		seq(regs...),
		identifyFunc(func(ctx context.Context, r region.Region) ([]*element.GeneCluster, error) {
			select {
			case <-time.After(60 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return oneCluster(r), nil
		}),
		assembleFunc(func(_ context.Context, c *element.GeneCluster) (*transcript.Set, error) {
			return &transcript.Set{}, nil
		}),
	)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, serr := os.Stat(filepath.Join(dir, output.TimeoutLogFile)); !os.IsNotExist(serr) {
		t.Fatal("no region should have timed out")
	}
	if got := labelsOf(t, dir, output.ElementFiles[element.TSSExon]); len(got) != 3 {
		t.Fatalf("labels = %v, want 3 committed regions", got)
	}
}

func TestParallelIdsGaplessAndOrdered(t *testing.T) {
	const n = 100
	var regs []region.Region
	for i := 0; i < n; i++ {
		regs = append(regs, region.Region{Chrom: "chr1", Start: i * 1000, End: i*1000 + 500})
	}
	dir, err := run(t, Options{Threads: 2},
		seq(regs...),
		identifyFunc(func(_ context.Context, r region.Region) ([]*element.GeneCluster, error) {
			// Perturb completion order.
			time.Sleep(time.Duration(r.Start%7) * time.Millisecond)
			return oneCluster(r), nil
		}),
		assembleFunc(func(_ context.Context, c *element.GeneCluster) (*transcript.Set, error) {
			return &transcript.Set{}, nil
		}),
	)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	got := labelsOf(t, dir, output.ElementFiles[element.TSSExon])
	if len(got) != n {
		t.Fatalf("got %d labels, want %d", len(got), n)
	}
	for i, label := range got {
		if want := fmt.Sprintf("c_%d", i+1); label != want {
			t.Fatalf("label %d = %s, want %s (gapless, input order)", i, label, want)
		}
	}
}

func TestInvalidRegionIsFatal(t *testing.T) {
	regs := seq(region.Region{Chrom: "", Start: 0, End: 100})
	_, err := run(t, Options{},
		regs,
		identifyFunc(func(_ context.Context, r region.Region) ([]*element.GeneCluster, error) {
			return nil, nil
		}),
		assembleFunc(func(_ context.Context, c *element.GeneCluster) (*transcript.Set, error) {
			return &transcript.Set{}, nil
		}),
	)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCancelPropagates(t *testing.T) {
	dir := t.TempDir()
	out, err := output.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var ids common.ClusterNumberer
	s := New(Options{}, &ids, out,
		identifyFunc(func(ctx context.Context, r region.Region) ([]*element.GeneCluster, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		assembleFunc(func(_ context.Context, c *element.GeneCluster) (*transcript.Set, error) {
			return &transcript.Set{}, nil
		}),
	)
	err = s.Process(ctx, seq(region.Region{Chrom: "chr1", Start: 0, End: 100}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
