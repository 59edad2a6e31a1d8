// internal/output/records.go
package output

import (
	"fmt"
	"strconv"
	"strings"

	"igia-core/element"
	"igia-core/transcript"
)

// Stream file names, fixed by the output contract. Every record is one
// tab-delimited line whose final field is the owning cluster's label.
var (
	ElementFiles = map[element.Kind]string{
		element.Intron:       "intron.bed6",
		element.InternalExon: "internal_exon.bed6",
		element.TSSExon:      "tss_exon.bed6",
		element.TESExon:      "tes_exon.bed6",
	}
	IsoformFiles = map[transcript.Category]string{
		transcript.IsoF: "isoF.bed12",
		transcript.IsoA: "isoA.bed12",
		transcript.IsoR: "isoR.bed12",
		transcript.IsoM: "isoM.bed12",
		transcript.IsoC: "isoC.bed12",
		transcript.IsoP: "isoP.bed12",
	}
)

// TimeoutLogFile is the append-only per-region timeout log, sibling to the
// ten streams.
const TimeoutLogFile = "igia_debug_timeout.log"

func elementLine(chrom string, e element.Element, label string) string {
	return fmt.Sprintf("%s\t%d\t%d\t%d\t%s\t%s\n",
		chrom, e.Span.Start, e.Span.End, e.Support, string(e.Strand), label)
}

func isoformLine(iso transcript.Isoform, label string) string {
	sizes := make([]string, len(iso.Blocks))
	starts := make([]string, len(iso.Blocks))
	for i, b := range iso.Blocks {
		sizes[i] = strconv.Itoa(b.Len())
		starts[i] = strconv.Itoa(b.Start - iso.Start)
	}
	return fmt.Sprintf("%s\t%d\t%d\t%d\t%s\t%d\t%s\t%s\t%s\n",
		iso.Chrom, iso.Start, iso.End, iso.Support, string(iso.Strand),
		len(iso.Blocks), strings.Join(sizes, ","), strings.Join(starts, ","), label)
}
