package workflow

import (
	"sync"

	"github.com/BaSui01/flowgate/types"
)

// UsageCollector accumulates per-node resource usage into the run's billing
// ledger. Entries are never dropped, even when the owning node later errors:
// partial work already has real cost.
type UsageCollector struct {
	mu     sync.Mutex
	usages []types.NodeUsage
}

// NewUsageCollector creates an empty per-run collector.
func NewUsageCollector() *UsageCollector {
	return &UsageCollector{}
}

// Record appends usage entries for a node.
func (c *UsageCollector) Record(nodeID, nodeName string, usages ...types.NodeUsage) {
	if len(usages) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range usages {
		if u.NodeID == "" {
			u.NodeID = nodeID
		}
		if u.NodeName == "" {
			u.NodeName = nodeName
		}
		c.usages = append(c.usages, u)
	}
}

// Count returns the number of recorded entries.
func (c *UsageCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.usages)
}

// Finalize returns the ledger for the billing collaborator. The returned
// slice is a copy; the collector can keep accepting entries until the run
// terminates.
func (c *UsageCollector) Finalize() []types.NodeUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.NodeUsage, len(c.usages))
	copy(out, c.usages)
	return out
}
