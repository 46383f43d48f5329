package consensus

import (
	"container/list"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// txContext is a validator's bookkeeping for one transaction it is still
// soliciting votes for (spec.md §4.9 "Per validator state").
type txContext struct {
	tx          models.Transaction
	deadline    int64
	approvals   int
	rejections  int
	noKnowledge int
	voted       map[models.ASN]bool
	votes       []models.Vote
}

func newTxContext(tx models.Transaction, deadline int64) *txContext {
	return &txContext{tx: tx, deadline: deadline, voted: make(map[models.ASN]bool)}
}

// committedSet is CommittedIDs: a bounded set of committed tx_ids that
// evicts the oldest-inserted id first (FIFO; lookups do not refresh an
// id), so a long-running validator doesn't grow this set without bound
// (spec.md §4.9, grounded on the same container/list lineage as
// internal/dedup.Cache).
type committedSet struct {
	max     int
	index   map[string]*list.Element
	order   *list.List
}

func newCommittedSet(max int) *committedSet {
	return &committedSet{max: max, index: make(map[string]*list.Element), order: list.New()}
}

func (c *committedSet) Has(txID string) bool {
	_, ok := c.index[txID]
	return ok
}

func (c *committedSet) Add(txID string) {
	if c.Has(txID) {
		return
	}
	elem := c.order.PushBack(txID)
	c.index[txID] = elem
	if c.order.Len() > c.max {
		front := c.order.Front()
		if front != nil {
			c.order.Remove(front)
			delete(c.index, front.Value.(string))
		}
	}
}
