// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"igia-core/element"
	"igia-core/region"
	"igia-core/transcript"
	"igia/internal/common"
	"igia/internal/logging"
	"igia/internal/output"
)

// ElementIdentifier discovers a region's gene clusters. Implementations must
// honor ctx cancellation and deadlines: the scheduler's region timer is the
// ctx deadline and cancellation is cooperative.
type ElementIdentifier interface {
	Identify(ctx context.Context, reg region.Region) ([]*element.GeneCluster, error)
}

// TranscriptAssembler produces one cluster's classified isoforms.
type TranscriptAssembler interface {
	Assemble(ctx context.Context, c *element.GeneCluster) (*transcript.Set, error)
}

// RegionSeq is a lazy, finite sequence of disjoint regions (typically
// linkage.Linkage.ForEach).
type RegionSeq func(emit func(region.Region) error) error

// Options controls region scheduling.
type Options struct {
	Deadline time.Duration // per-region time budget; 0 disables the timer
	Threads  int           // worker goroutines; <=1 processes sequentially
}

// Scheduler drives region processing. A region that exceeds its deadline is
// abandoned whole (no partial records) and logged; any other collaborator
// error is fatal and stops the run after in-flight regions wind down.
type Scheduler struct {
	opts Options
	ids  *common.ClusterNumberer
	out  *output.Multiplexer
	elem ElementIdentifier
	tx   TranscriptAssembler
}

// New wires a Scheduler.
func New(opts Options, ids *common.ClusterNumberer, out *output.Multiplexer, elem ElementIdentifier, tx TranscriptAssembler) *Scheduler {
	return &Scheduler{opts: opts, ids: ids, out: out, elem: elem, tx: tx}
}

type job struct {
	idx int
	reg region.Region
}

type clusterResult struct {
	cluster *element.GeneCluster
	set     *transcript.Set
}

type regionResult struct {
	idx      int
	reg      region.Region
	timedOut bool
	clusters []clusterResult
	err      error
}

// Process consumes regions in sequence order. Workers analyze regions in
// parallel; a single committing collector applies results in input order, so
// streams stay single-writer and output is deterministic regardless of
// completion order. Returns the first fatal error, or ctx.Err() on
// cancellation; timeouts are logged and never returned.
func (s *Scheduler) Process(parent context.Context, regions RegionSeq) error {
	threads := s.opts.Threads
	if threads < 1 {
		threads = 1
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan job, threads*2)
	results := make(chan regionResult, threads*2)

	var wg sync.WaitGroup
	wg.Add(threads)
	for w := 0; w < threads; w++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j, ok := <-jobs:
					if !ok {
						return
					}
					res := s.analyze(ctx, j)
					select {
					case results <- res:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	// Committing collector. Results are held until their turn so regions
	// commit in input order; after a fatal error no further region commits.
	var (
		cerr error
		cwg  sync.WaitGroup
	)
	cwg.Add(1)
	go func() {
		defer cwg.Done()
		pending := map[int]regionResult{}
		next := 0
		for res := range results {
			pending[res.idx] = res
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if cerr != nil {
					continue
				}
				if err := s.commit(r); err != nil {
					cerr = err
					cancel()
				}
			}
		}
	}()

	total := 0
	ferr := regions(func(r region.Region) error {
		if err := r.Validate(); err != nil {
			return err
		}
		select {
		case jobs <- job{idx: total, reg: r}:
			total++
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	close(jobs)
	wg.Wait()
	close(results)
	cwg.Wait()

	if cerr != nil {
		return cerr
	}
	if ferr != nil && !errors.Is(ferr, context.Canceled) {
		return ferr
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	return nil
}

// analyze runs both collaborators for one region under its own deadline.
// The timer is armed here and disarmed by the deferred cancel before this
// worker can pick up another region, so no stale timer crosses a region
// boundary.
func (s *Scheduler) analyze(parent context.Context, j job) regionResult {
	res := regionResult{idx: j.idx, reg: j.reg}

	ctx := parent
	if s.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.opts.Deadline)
		defer cancel()
	}

	logging.Debug("start identifying elements", zap.Stringer("region", j.reg))
	clusters, err := s.elem.Identify(ctx, j.reg)
	if err != nil {
		res.timedOut, res.err = s.outcome(parent, err)
		return res
	}
	logging.Debug("finish identifying elements",
		zap.Stringer("region", j.reg), zap.Int("clusters", len(clusters)))

	for _, c := range clusters {
		if !c.HasElements() {
			// Never numbered, never written.
			continue
		}
		logging.Debug("start identifying transcripts", zap.Stringer("cluster", c))
		set, err := s.tx.Assemble(ctx, c)
		if err != nil {
			res.timedOut, res.err = s.outcome(parent, err)
			res.clusters = nil // all-or-nothing per region
			return res
		}
		res.clusters = append(res.clusters, clusterResult{cluster: c, set: set})
	}
	return res
}

// outcome classifies a collaborator error: parent cancellation propagates,
// the region deadline (when one is armed) is a recoverable timeout, and
// everything else is fatal.
func (s *Scheduler) outcome(parent context.Context, err error) (timedOut bool, fatal error) {
	switch {
	case parent.Err() != nil:
		return false, parent.Err()
	case s.opts.Deadline > 0 && errors.Is(err, context.DeadlineExceeded):
		return true, nil
	default:
		return false, err
	}
}

// commit writes one region's outcome. Cluster ids are assigned only here, in
// commit order, so abandoned regions never consume a number and the emitted
// id set stays gapless. The atomic numberer keeps ids unique even if commits
// are ever issued from more than one goroutine.
func (s *Scheduler) commit(r regionResult) error {
	if r.err != nil {
		return fmt.Errorf("region %s: %w", r.reg, r.err)
	}
	if r.timedOut {
		logging.Warn("region timed out",
			zap.Stringer("region", r.reg), zap.Duration("deadline", s.opts.Deadline))
		return s.out.LogTimeout(r.reg, s.opts.Deadline)
	}
	for _, cr := range r.clusters {
		id := s.ids.Next()
		for _, e := range cr.cluster.Elements {
			if err := s.out.WriteElement(cr.cluster.Chrom, e, id); err != nil {
				return err
			}
		}
		ord := map[transcript.Category]int{}
		for _, iso := range cr.set.Isoforms {
			ord[iso.Category]++
			label := common.IsoformLabel(id, iso.Category.Short(), ord[iso.Category])
			if err := s.out.WriteIsoform(iso, label); err != nil {
				return err
			}
		}
	}
	return nil
}
