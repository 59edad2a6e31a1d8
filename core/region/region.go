// core/region/region.go
package region

import (
	"fmt"
)

// Span is a half-open interval [Start, End) on one chromosome.
type Span struct {
	Start int
	End   int
}

// Len returns the span length in bases.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two half-open spans intersect.
func (s Span) Overlaps(o Span) bool { return s.Start < o.End && o.Start < s.End }

// Covers reports whether s fully contains o.
func (s Span) Covers(o Span) bool { return s.Start <= o.Start && o.End <= s.End }

// Region is a disjoint linkage region: all evidence for a gene cluster is
// contained in exactly one Region.
type Region struct {
	Chrom string
	Start int
	End   int
}

// Validate checks the (chrom, start, end) triple.
func (r Region) Validate() error {
	if r.Chrom == "" {
		return fmt.Errorf("region: empty chromosome")
	}
	if r.Start < 0 {
		return fmt.Errorf("region %s: negative start %d", r.Chrom, r.Start)
	}
	if r.End <= r.Start {
		return fmt.Errorf("region %s: end %d not after start %d", r.Chrom, r.End, r.Start)
	}
	return nil
}

// Span returns the region's interval without the chromosome.
func (r Region) Span() Span { return Span{Start: r.Start, End: r.End} }

// Overlaps reports whether the region intersects [start, end) on chrom.
func (r Region) Overlaps(chrom string, start, end int) bool {
	return r.Chrom == chrom && r.Start < end && start < r.End
}

func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Chrom, r.Start, r.End)
}
