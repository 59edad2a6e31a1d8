// core/element/element.go
package element

import (
	"fmt"

	"igia-core/region"
)

// Kind is the element category, one per element output stream.
type Kind int

const (
	Intron Kind = iota
	InternalExon
	TSSExon
	TESExon
)

func (k Kind) String() string {
	switch k {
	case Intron:
		return "intron"
	case InternalExon:
		return "internal_exon"
	case TSSExon:
		return "tss_exon"
	case TESExon:
		return "tes_exon"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Element is one confirmed genomic element of a gene cluster.
type Element struct {
	Kind    Kind
	Span    region.Span
	Strand  byte
	Support int // supporting read count (spliced reads for introns)
}

// Chain is one distinct exon-block path observed in the evidence, with
// per-class support counts. Transcript assembly consumes chains.
type Chain struct {
	Blocks []region.Span
	NGS    int
	TGS    int
	ANN    int
}

// GeneCluster is a maximal set of elements within one region sharing no exon
// with any other cluster of that region. Clusters whose only support is
// annotation pseudo-evidence carry no confirmed elements and are skipped by
// the caller (they never receive a cluster id).
type GeneCluster struct {
	Chrom  string
	Strand byte
	Start  int
	End    int
	Order  int // region-local discovery order

	Elements        []Element
	Chains          []Chain
	RetainedIntrons []region.Span
}

// HasElements reports whether any element was confirmed.
func (c *GeneCluster) HasElements() bool { return len(c.Elements) > 0 }

// Region returns the cluster's genomic footprint.
func (c *GeneCluster) Region() region.Region {
	return region.Region{Chrom: c.Chrom, Start: c.Start, End: c.End}
}

func (c *GeneCluster) String() string {
	return fmt.Sprintf("%s:%d-%d(%s)", c.Chrom, c.Start, c.End, string(c.Strand))
}
