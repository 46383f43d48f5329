package fabric

import "github.com/bgp-sentry/pop-simulator/pkg/models"

// Message is the closed sum type routed by the fabric (spec.md §9:
// "Runtime attribute injection and dynamic dispatch on message types" is
// rephrased as a closed sum type dispatched by match). Handlers type-switch
// on the concrete type.
type Message interface {
	messageKind() string
}

// VoteRequest solicits a vote on a newly-created transaction (spec.md §4.9
// creation path step 7).
type VoteRequest struct {
	Tx models.Transaction
}

func (VoteRequest) messageKind() string { return "VoteRequest" }

// VoteResponse carries a signer's vote back to the merger (spec.md §4.9
// voting path).
type VoteResponse struct {
	Vote models.Vote
}

func (VoteResponse) messageKind() string { return "VoteResponse" }

// BlockReplicate pushes a committed block to a validator's replica
// (spec.md §4.9 commit path).
type BlockReplicate struct {
	Block models.Block
}

func (BlockReplicate) messageKind() string { return "BlockReplicate" }

// AttackProposal announces a committed attack transaction for secondary
// verdict voting (spec.md §4.10).
type AttackProposal struct {
	Tx models.Transaction
}

func (AttackProposal) messageKind() string { return "AttackProposal" }

// AttackVote is a peer's YES/NO opinion on an AttackProposal (spec.md §4.10).
type AttackVote struct {
	TxID string
	Yes  bool
}

func (AttackVote) messageKind() string { return "AttackVote" }
