// core/annotation/sites.go
package annotation

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Site is an externally determined transcription start or end site.
type Site struct {
	Chrom  string
	Pos    int
	Strand byte
}

// SiteList holds TSS or TES sites with per-chromosome sorted position lookup.
// A nil *SiteList is valid and empty.
type SiteList struct {
	byChrom map[string][]Site
}

// LoadSites reads a site TSV (chrom, position, strand). Blank lines and
// '#' comments are skipped.
func LoadSites(path string) (*SiteList, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sites %s: %w", path, err)
	}
	defer fh.Close()

	l := &SiteList{byChrom: map[string][]Site{}}
	sc := bufio.NewScanner(fh)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) != 3 || len(f[2]) != 1 {
			return nil, fmt.Errorf("sites %s:%d: expected chrom<TAB>pos<TAB>strand", path, lineNo)
		}
		pos, err := strconv.Atoi(f[1])
		if err != nil || pos < 0 {
			return nil, fmt.Errorf("sites %s:%d: bad position %q", path, lineNo, f[1])
		}
		strand := f[2][0]
		if strand != '+' && strand != '-' {
			return nil, fmt.Errorf("sites %s:%d: bad strand %q", path, lineNo, f[2])
		}
		l.byChrom[f[0]] = append(l.byChrom[f[0]], Site{Chrom: f[0], Pos: pos, Strand: strand})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("sites %s: %w", path, err)
	}
	for c := range l.byChrom {
		sort.Slice(l.byChrom[c], func(i, j int) bool { return l.byChrom[c][i].Pos < l.byChrom[c][j].Pos })
	}
	return l, nil
}

// Has reports whether any site lies in [lo, hi) on chrom matching strand.
// Strand '.' matches either strand.
func (l *SiteList) Has(chrom string, lo, hi int, strand byte) bool {
	if l == nil || l.byChrom == nil {
		return false
	}
	sites := l.byChrom[chrom]
	i := sort.Search(len(sites), func(i int) bool { return sites[i].Pos >= lo })
	for ; i < len(sites) && sites[i].Pos < hi; i++ {
		if strand == '.' || sites[i].Strand == strand {
			return true
		}
	}
	return false
}

// Dedupe collapses sites on the same chromosome and strand lying within
// maxDiff of each other, keeping the first of each run.
func (l *SiteList) Dedupe(maxDiff int) {
	if l == nil || maxDiff <= 0 {
		return
	}
	for c, sites := range l.byChrom {
		var plus, minus []int
		for _, s := range sites {
			if s.Strand == '+' {
				plus = append(plus, s.Pos)
			} else {
				minus = append(minus, s.Pos)
			}
		}
		merged := make([]Site, 0, len(sites))
		for _, p := range Collapse(plus, maxDiff) {
			merged = append(merged, Site{Chrom: c, Pos: p, Strand: '+'})
		}
		for _, p := range Collapse(minus, maxDiff) {
			merged = append(merged, Site{Chrom: c, Pos: p, Strand: '-'})
		}
		sort.Slice(merged, func(i, j int) bool { return merged[i].Pos < merged[j].Pos })
		l.byChrom[c] = merged
	}
}

// Collapse merges positions closer than maxDiff into one representative
// (the first of each run). Input need not be sorted; output is sorted.
func Collapse(positions []int, maxDiff int) []int {
	if len(positions) == 0 {
		return nil
	}
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)
	out := []int{sorted[0]}
	for _, p := range sorted[1:] {
		if p-out[len(out)-1] > maxDiff {
			out = append(out, p)
		}
	}
	return out
}
