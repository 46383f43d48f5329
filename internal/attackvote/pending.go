package attackvote

import "github.com/bgp-sentry/pop-simulator/pkg/models"

// verdictContext is the proposer's bookkeeping for one in-flight secondary
// attack vote (spec.md §4.10), mirroring internal/consensus's txContext.
type verdictContext struct {
	tx        models.Transaction
	deadline  int64
	yes       int
	no        int
	voted     map[models.ASN]bool
	yesVoters []models.ASN
}

func newVerdictContext(tx models.Transaction, deadline int64) *verdictContext {
	return &verdictContext{tx: tx, deadline: deadline, voted: make(map[models.ASN]bool)}
}
