// core/evidence/evidence.go
package evidence

import (
	"fmt"

	"igia-core/region"
)

// Class tags an evidence source by sequencing technology.
type Class string

const (
	NGS Class = "NGS" // short-read RNA-seq
	TGS Class = "TGS" // long reads (PacBio / Nanopore)
	ANN Class = "ANN" // assembled annotation used as pseudo-evidence
)

// Alignment is one aligned read (or annotation record) in genome coordinates.
// Blocks are the aligned segments in ascending order; a gap between two
// consecutive blocks is a splice gap. Single-block alignments have exactly
// one block spanning [Start, End).
type Alignment struct {
	Chrom  string
	Start  int
	End    int
	Strand byte // '+', '-' or '.'
	Class  Class
	Blocks []region.Span
}

// Spliced reports whether the alignment has at least one splice gap.
func (a Alignment) Spliced() bool { return len(a.Blocks) > 1 }

func (a Alignment) validate() error {
	if a.Chrom == "" {
		return fmt.Errorf("alignment: empty chromosome")
	}
	if a.Start < 0 || a.End <= a.Start {
		return fmt.Errorf("alignment %s: bad interval %d-%d", a.Chrom, a.Start, a.End)
	}
	switch a.Strand {
	case '+', '-', '.':
	default:
		return fmt.Errorf("alignment %s:%d-%d: bad strand %q", a.Chrom, a.Start, a.End, string(a.Strand))
	}
	prev := a.Start
	for _, b := range a.Blocks {
		if b.Start < prev || b.End <= b.Start || b.End > a.End {
			return fmt.Errorf("alignment %s:%d-%d: bad block %d-%d", a.Chrom, a.Start, a.End, b.Start, b.End)
		}
		prev = b.End
	}
	if len(a.Blocks) > 0 {
		if a.Blocks[0].Start != a.Start || a.Blocks[len(a.Blocks)-1].End != a.End {
			return fmt.Errorf("alignment %s:%d-%d: blocks do not span the interval", a.Chrom, a.Start, a.End)
		}
	}
	return nil
}

// Source is one evidence file. Scanning is streaming and repeatable (the
// file is reopened per scan); Fetch filters one region's overlapping
// alignments into memory.
type Source struct {
	Path  string
	Class Class
}

// NewSource returns a Source for path tagged with class.
func NewSource(path string, class Class) *Source {
	return &Source{Path: path, Class: class}
}

func (s *Source) String() string { return fmt.Sprintf("%s(%s)", s.Class, s.Path) }
