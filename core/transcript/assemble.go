// core/transcript/assemble.go
package transcript

import (
	"context"
	"fmt"
	"sort"

	"igia-core/element"
	"igia-core/evidence"
	"igia-core/region"
)

// Config holds the immutable bindings for transcript assembly.
type Config struct {
	Cfm *evidence.Source // optional confirmed annotation feeding IsoC
}

// Assembler turns one gene cluster's evidence chains into classified
// isoforms.
type Assembler struct {
	cfg Config
}

// New returns an Assembler for cfg.
func New(cfg Config) *Assembler { return &Assembler{cfg: cfg} }

// Assemble classifies every distinct evidence chain of the cluster into one
// of the six isoform categories. Results are deterministic: sorted by
// position, then category.
func (as *Assembler) Assemble(ctx context.Context, c *element.GeneCluster) (*Set, error) {
	var confirmed map[string]bool
	if as.cfg.Cfm != nil {
		alns, err := as.cfg.Cfm.Fetch(ctx, c.Region())
		if err != nil {
			return nil, fmt.Errorf("assemble %s: %w", c, err)
		}
		confirmed = make(map[string]bool, len(alns))
		for _, a := range alns {
			confirmed[chainKey(a.Blocks)] = true
		}
	}

	set := &Set{}
	for _, ch := range c.Chains {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		iso := Isoform{
			Chrom:   c.Chrom,
			Strand:  c.Strand,
			Start:   ch.Blocks[0].Start,
			End:     ch.Blocks[len(ch.Blocks)-1].End,
			Blocks:  append([]region.Span(nil), ch.Blocks...),
			Support: ch.NGS + ch.TGS + ch.ANN,
		}
		iso.Category = classify(c, ch, confirmed)
		set.Isoforms = append(set.Isoforms, iso)
	}

	sort.Slice(set.Isoforms, func(i, j int) bool {
		a, b := set.Isoforms[i], set.Isoforms[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Category < b.Category
	})
	return set, nil
}

// classify applies the category rules in precedence order: annotation
// confirmation, then full-length long-read, then merged, then assembled
// short-read, then intron retention, then partial.
func classify(c *element.GeneCluster, ch element.Chain, confirmed map[string]bool) Category {
	switch {
	case confirmed[chainKey(ch.Blocks)]:
		return IsoC
	case ch.TGS > 0 && coversEnds(c, ch):
		return IsoF
	case ch.TGS > 0 && ch.NGS > 0:
		return IsoM
	case ch.NGS > 0 && coversEnds(c, ch):
		return IsoA
	case spansRetained(c, ch):
		return IsoR
	default:
		return IsoP
	}
}

// coversEnds reports whether the chain touches both a TSS-proximal and a
// TES-proximal exon of the cluster.
func coversEnds(c *element.GeneCluster, ch element.Chain) bool {
	tss, tes := false, false
	for _, e := range c.Elements {
		if e.Kind != element.TSSExon && e.Kind != element.TESExon {
			continue
		}
		for _, b := range ch.Blocks {
			if b.Overlaps(e.Span) {
				if e.Kind == element.TSSExon {
					tss = true
				} else {
					tes = true
				}
			}
		}
	}
	return tss && tes
}

// spansRetained reports whether any chain block reads through a retained
// intron of the cluster.
func spansRetained(c *element.GeneCluster, ch element.Chain) bool {
	for _, ri := range c.RetainedIntrons {
		for _, b := range ch.Blocks {
			if b.Covers(ri) {
				return true
			}
		}
	}
	return false
}

func chainKey(blocks []region.Span) string {
	key := ""
	for _, s := range blocks {
		key += fmt.Sprintf("%d-%d;", s.Start, s.End)
	}
	return key
}
