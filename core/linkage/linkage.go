// core/linkage/linkage.go
package linkage

import (
	"context"
	"sort"

	"igia-core/evidence"
	"igia-core/region"
)

// Linkage is the ordered set of disjoint regions covering all evidence.
// Two alignments land in the same region iff their spans overlap or abut,
// transitively, so no gene cluster can cross a region boundary.
type Linkage struct {
	regions []region.Region
}

// Build scans every source once and merges alignment spans per chromosome
// into maximal disjoint regions, ordered by chromosome then start.
func Build(ctx context.Context, sources []*evidence.Source) (*Linkage, error) {
	spans := map[string][]region.Span{}
	for _, src := range sources {
		err := src.Scan(ctx, func(a evidence.Alignment) error {
			spans[a.Chrom] = append(spans[a.Chrom], region.Span{Start: a.Start, End: a.End})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	chroms := make([]string, 0, len(spans))
	for c := range spans {
		chroms = append(chroms, c)
	}
	sort.Strings(chroms)

	l := &Linkage{}
	for _, chrom := range chroms {
		ss := spans[chrom]
		sort.Slice(ss, func(i, j int) bool {
			if ss[i].Start != ss[j].Start {
				return ss[i].Start < ss[j].Start
			}
			return ss[i].End < ss[j].End
		})
		cur := ss[0]
		for _, s := range ss[1:] {
			if s.Start <= cur.End { // overlap or abut
				if s.End > cur.End {
					cur.End = s.End
				}
				continue
			}
			l.regions = append(l.regions, region.Region{Chrom: chrom, Start: cur.Start, End: cur.End})
			cur = s
		}
		l.regions = append(l.regions, region.Region{Chrom: chrom, Start: cur.Start, End: cur.End})
	}
	return l, nil
}

// Len returns the number of regions.
func (l *Linkage) Len() int { return len(l.regions) }

// ForEach emits regions in order. Returning a non-nil error from emit stops
// the iteration and propagates that error.
func (l *Linkage) ForEach(emit func(region.Region) error) error {
	for _, r := range l.regions {
		if err := emit(r); err != nil {
			return err
		}
	}
	return nil
}
