// internal/common/ids.go
package common

import (
	"fmt"
	"sync/atomic"
)

// ClusterNumberer hands out run-global gene cluster identifiers of the form
// "c_<n>", strictly monotonic from c_1. It is the single piece of shared
// mutable state in the region pipeline, so it must stay safe under parallel
// region processing.
type ClusterNumberer struct {
	n atomic.Int64
}

// Next returns the next cluster id.
func (c *ClusterNumberer) Next() string {
	return fmt.Sprintf("c_%d", c.n.Add(1))
}

// Count returns how many ids have been assigned so far.
func (c *ClusterNumberer) Count() int64 { return c.n.Load() }

// IsoformLabel derives a per-isoform record label from the owning cluster id,
// e.g. "c_3.F1" for the first isoF isoform of cluster c_3.
func IsoformLabel(clusterID, categoryShort string, ordinal int) string {
	return fmt.Sprintf("%s.%s%d", clusterID, categoryShort, ordinal)
}
