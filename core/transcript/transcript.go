// core/transcript/transcript.go
package transcript

import (
	"fmt"

	"igia-core/region"
)

// Category is the isoform classification label, one per isoform output
// stream.
type Category int

const (
	IsoF Category = iota // full-length, long-read defined with TSS and TES support
	IsoA                 // assembled from short-read evidence with TSS and TES support
	IsoR                 // carries a retained intron
	IsoM                 // merged: same structure seen in short- and long-read evidence
	IsoC                 // confirmed by trusted annotation
	IsoP                 // partial: structure lacks TSS or TES support
)

// Categories lists all isoform categories in stream order.
var Categories = [...]Category{IsoF, IsoA, IsoR, IsoM, IsoC, IsoP}

func (c Category) String() string {
	switch c {
	case IsoF:
		return "isoF"
	case IsoA:
		return "isoA"
	case IsoR:
		return "isoR"
	case IsoM:
		return "isoM"
	case IsoC:
		return "isoC"
	case IsoP:
		return "isoP"
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Short returns the single-letter tag used in record labels.
func (c Category) Short() string {
	switch c {
	case IsoF:
		return "F"
	case IsoA:
		return "A"
	case IsoR:
		return "R"
	case IsoM:
		return "M"
	case IsoC:
		return "C"
	case IsoP:
		return "P"
	}
	return "?"
}

// Isoform is one assembled, classified transcript model.
type Isoform struct {
	Chrom    string
	Strand   byte
	Start    int
	End      int
	Blocks   []region.Span
	Category Category
	Support  int
}

// Set is the per-cluster result of transcript assembly.
type Set struct {
	Isoforms []Isoform
}
