// core/element/identify.go
package element

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"igia-core/annotation"
	"igia-core/evidence"
	"igia-core/fasta"
	"igia-core/region"
)

// Library strandedness rules.
const (
	RuleSingleEnd = "single_end"
	RuleFR        = "1++,1--,2+-,2-+"
	RuleRF        = "1+-,1-+,2++,2--"
)

// Config holds the immutable parameters and evidence bindings for element
// identification. It is set once and read concurrently by any number of
// in-flight region analyses.
type Config struct {
	Rule      string  // one of RuleSingleEnd, RuleFR, RuleRF
	TxsDiff   int     // distance cutoff for merging nearby TSS/TES
	PIRCutoff float64 // introns retained above this ratio are not called

	NGS []*evidence.Source
	TGS []*evidence.Source
	Ann *evidence.Source // optional assembled annotation

	TSS *annotation.SiteList // optional external TSS sites
	TES *annotation.SiteList // optional external TES sites

	Genome fasta.Genome // optional; enables canonical splice-site checks
}

// Stranded reports whether the library rule makes NGS strand trustworthy.
func (c Config) Stranded() bool { return c.Rule != RuleSingleEnd }

// Identifier discovers gene clusters and their elements within one region.
type Identifier struct {
	cfg Config
}

// New returns an Identifier for cfg.
func New(cfg Config) *Identifier { return &Identifier{cfg: cfg} }

// Identify returns the gene clusters of reg in positional order, each with
// its region-local discovery order set. It honors ctx cancellation and
// deadlines between evidence scans and per-component work.
func (id *Identifier) Identify(ctx context.Context, reg region.Region) ([]*GeneCluster, error) {
	var alns []evidence.Alignment
	sources := make([]*evidence.Source, 0, len(id.cfg.NGS)+len(id.cfg.TGS)+1)
	sources = append(sources, id.cfg.NGS...)
	sources = append(sources, id.cfg.TGS...)
	if id.cfg.Ann != nil {
		sources = append(sources, id.cfg.Ann)
	}
	for _, src := range sources {
		part, err := src.Fetch(ctx, reg)
		if err != nil {
			return nil, fmt.Errorf("identify %s: %w", reg, err)
		}
		alns = append(alns, part...)
	}
	if len(alns) == 0 {
		return nil, nil
	}

	var clusters []*GeneCluster
	if id.cfg.Stranded() {
		for _, strand := range []byte{'+', '-'} {
			var group []evidence.Alignment
			for _, a := range alns {
				if effectiveStrand(a) == strand {
					group = append(group, a)
				}
			}
			cs, err := id.clusterGroup(ctx, reg.Chrom, strand, group)
			if err != nil {
				return nil, err
			}
			clusters = append(clusters, cs...)
		}
	} else {
		cs, err := id.clusterGroup(ctx, reg.Chrom, '.', alns)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, cs...)
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Start != clusters[j].Start {
			return clusters[i].Start < clusters[j].Start
		}
		if clusters[i].End != clusters[j].End {
			return clusters[i].End < clusters[j].End
		}
		return clusters[i].Strand < clusters[j].Strand
	})
	for i, c := range clusters {
		c.Order = i
	}
	return clusters, nil
}

// effectiveStrand maps '.' onto '+' so unstranded records still land in one
// stranded group.
func effectiveStrand(a evidence.Alignment) byte {
	if a.Strand == '.' {
		return '+'
	}
	return a.Strand
}

// clusterGroup partitions one strand group into exon-disjoint clusters.
// groupStrand is '.' in unstranded mode; each cluster then infers its strand
// from long-read and annotation evidence.
func (id *Identifier) clusterGroup(ctx context.Context, chrom string, groupStrand byte, alns []evidence.Alignment) ([]*GeneCluster, error) {
	if len(alns) == 0 {
		return nil, nil
	}

	// Merged exon blocks over all aligned segments. Every alignment block is
	// contained in exactly one merged exon, so exon sharing is transitive by
	// construction.
	var raw []region.Span
	for _, a := range alns {
		raw = append(raw, a.Blocks...)
	}
	exons := mergeSpans(raw)

	uf := newUnionFind(len(exons))
	touched := make([][]int, len(alns))
	for i, a := range alns {
		for _, b := range a.Blocks {
			e := findExon(exons, b)
			touched[i] = append(touched[i], e)
		}
		for _, e := range touched[i][1:] {
			uf.union(touched[i][0], e)
		}
	}

	// Component index -> member exon/alignment lists, in deterministic order.
	compOf := map[int]int{}
	var compExons [][]int
	for e := range exons {
		root := uf.find(e)
		ci, ok := compOf[root]
		if !ok {
			ci = len(compExons)
			compOf[root] = ci
			compExons = append(compExons, nil)
		}
		compExons[ci] = append(compExons[ci], e)
	}
	compAlns := make([][]int, len(compExons))
	for i := range alns {
		ci := compOf[uf.find(touched[i][0])]
		compAlns[ci] = append(compAlns[ci], i)
	}

	var clusters []*GeneCluster
	for ci := range compExons {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		c := id.buildCluster(chrom, groupStrand, exons, compExons[ci], alns, compAlns[ci], touched)
		clusters = append(clusters, c)
	}
	return clusters, nil
}

// buildCluster derives elements, chains, and retained introns for one
// connected component.
func (id *Identifier) buildCluster(chrom string, groupStrand byte, exons []region.Span, member []int, alns []evidence.Alignment, own []int, touched [][]int) *GeneCluster {
	sort.Ints(member)
	compSpans := make([]region.Span, len(member))
	for i, e := range member {
		compSpans[i] = exons[e]
	}

	c := &GeneCluster{
		Chrom: chrom,
		Start: compSpans[0].Start,
		End:   compSpans[len(compSpans)-1].End,
	}

	readSupport := false
	for _, ai := range own {
		if alns[ai].Class != evidence.ANN {
			readSupport = true
			break
		}
	}
	c.Strand = id.clusterStrand(groupStrand, alns, own)
	c.Chains = buildChains(alns, own)

	if !readSupport {
		// Annotation alone does not confirm elements; the cluster is
		// reported but stays element-free.
		return c
	}

	// Intron candidates: splice gaps of read-class alignments.
	type gapStat struct{ spliced, retained int }
	gaps := map[region.Span]*gapStat{}
	for _, ai := range own {
		a := alns[ai]
		if a.Class == evidence.ANN {
			continue
		}
		for i := 1; i < len(a.Blocks); i++ {
			g := region.Span{Start: a.Blocks[i-1].End, End: a.Blocks[i].Start}
			st, ok := gaps[g]
			if !ok {
				st = &gapStat{}
				gaps[g] = st
			}
			st.spliced++
		}
	}
	for _, ai := range own {
		for _, b := range alns[ai].Blocks {
			for g, st := range gaps {
				if b.Covers(g) {
					st.retained++
				}
			}
		}
	}
	gapKeys := make([]region.Span, 0, len(gaps))
	for g := range gaps {
		gapKeys = append(gapKeys, g)
	}
	sort.Slice(gapKeys, func(i, j int) bool {
		if gapKeys[i].Start != gapKeys[j].Start {
			return gapKeys[i].Start < gapKeys[j].Start
		}
		return gapKeys[i].End < gapKeys[j].End
	})

	for _, g := range gapKeys {
		st := gaps[g]
		pir := float64(st.retained) / float64(st.retained+st.spliced)
		if pir > id.cfg.PIRCutoff {
			c.RetainedIntrons = append(c.RetainedIntrons, g)
			continue
		}
		if !id.spliceSiteOK(chrom, g, c.Strand) {
			continue
		}
		c.Elements = append(c.Elements, Element{Kind: Intron, Span: g, Strand: c.Strand, Support: st.spliced})
	}

	// Exon classification. The 5'-most exon is TSS-proximal and the 3'-most
	// TES-proximal (strand-aware); external sites within the distance cutoff
	// promote additional exons.
	tssIdx, tesIdx := 0, len(compSpans)-1
	if c.Strand == '-' {
		tssIdx, tesIdx = tesIdx, tssIdx
	}
	for i, span := range compSpans {
		support := 0
		for _, ai := range own {
			if alns[ai].Class == evidence.ANN {
				continue
			}
			for _, b := range alns[ai].Blocks {
				if b.Overlaps(span) {
					support++
					break
				}
			}
		}
		isTSS := i == tssIdx || id.cfg.TSS.Has(chrom, span.Start-id.cfg.TxsDiff, span.End+id.cfg.TxsDiff, c.Strand)
		isTES := i == tesIdx || id.cfg.TES.Has(chrom, span.Start-id.cfg.TxsDiff, span.End+id.cfg.TxsDiff, c.Strand)
		switch {
		case isTSS && isTES:
			c.Elements = append(c.Elements,
				Element{Kind: TSSExon, Span: span, Strand: c.Strand, Support: support},
				Element{Kind: TESExon, Span: span, Strand: c.Strand, Support: support})
		case isTSS:
			c.Elements = append(c.Elements, Element{Kind: TSSExon, Span: span, Strand: c.Strand, Support: support})
		case isTES:
			c.Elements = append(c.Elements, Element{Kind: TESExon, Span: span, Strand: c.Strand, Support: support})
		default:
			c.Elements = append(c.Elements, Element{Kind: InternalExon, Span: span, Strand: c.Strand, Support: support})
		}
	}

	sort.Slice(c.Elements, func(i, j int) bool {
		a, b := c.Elements[i], c.Elements[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.End != b.Span.End {
			return a.Span.End < b.Span.End
		}
		return a.Kind < b.Kind
	})
	return c
}

// clusterStrand picks the stranded group's strand, or infers one from
// long-read / annotation majority in unstranded mode.
func (id *Identifier) clusterStrand(groupStrand byte, alns []evidence.Alignment, own []int) byte {
	if groupStrand != '.' {
		return groupStrand
	}
	plus, minus := 0, 0
	for _, ai := range own {
		a := alns[ai]
		if a.Class == evidence.NGS {
			continue
		}
		switch a.Strand {
		case '+':
			plus++
		case '-':
			minus++
		}
	}
	if minus > plus {
		return '-'
	}
	return '+'
}

// spliceSiteOK validates an intron's terminal dinucleotides against the
// genome when one is loaded: GT..AG on '+', CT..AC on '-'. Without a genome,
// or when the sequence is unavailable, the intron passes.
func (id *Identifier) spliceSiteOK(chrom string, g region.Span, strand byte) bool {
	if id.cfg.Genome == nil || g.Len() < 4 {
		return true
	}
	donor := id.cfg.Genome.Slice(chrom, g.Start, g.Start+2)
	acceptor := id.cfg.Genome.Slice(chrom, g.End-2, g.End)
	if donor == nil || acceptor == nil {
		return true
	}
	if strand == '-' {
		return bytes.Equal(donor, []byte("CT")) && bytes.Equal(acceptor, []byte("AC"))
	}
	return bytes.Equal(donor, []byte("GT")) && bytes.Equal(acceptor, []byte("AG"))
}

func buildChains(alns []evidence.Alignment, own []int) []Chain {
	byKey := map[string]*Chain{}
	var keys []string
	for _, ai := range own {
		a := alns[ai]
		key := chainKey(a.Blocks)
		ch, ok := byKey[key]
		if !ok {
			ch = &Chain{Blocks: append([]region.Span(nil), a.Blocks...)}
			byKey[key] = ch
			keys = append(keys, key)
		}
		switch a.Class {
		case evidence.NGS:
			ch.NGS++
		case evidence.TGS:
			ch.TGS++
		case evidence.ANN:
			ch.ANN++
		}
	}
	sort.Strings(keys)
	out := make([]Chain, 0, len(byKey))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}

func chainKey(blocks []region.Span) string {
	var b bytes.Buffer
	for _, s := range blocks {
		fmt.Fprintf(&b, "%d-%d;", s.Start, s.End)
	}
	return b.String()
}

// mergeSpans unions overlapping or abutting spans into disjoint sorted spans.
func mergeSpans(spans []region.Span) []region.Span {
	if len(spans) == 0 {
		return nil
	}
	ss := append([]region.Span(nil), spans...)
	sort.Slice(ss, func(i, j int) bool {
		if ss[i].Start != ss[j].Start {
			return ss[i].Start < ss[j].Start
		}
		return ss[i].End < ss[j].End
	})
	out := []region.Span{ss[0]}
	for _, s := range ss[1:] {
		last := &out[len(out)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// findExon locates the merged exon containing block b (binary search over
// disjoint sorted exons).
func findExon(exons []region.Span, b region.Span) int {
	i := sort.Search(len(exons), func(i int) bool { return exons[i].End > b.Start })
	return i
}

type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
