package domain

// CommitKind classifies the operation that produced a commit.
type CommitKind string

// Commit kinds
const (
	CommitKindIssue      CommitKind = "ISSUE"
	CommitKindDistribute CommitKind = "DISTRIBUTE"
	CommitKindTransfer   CommitKind = "TRANSFER"
	CommitKindConsume    CommitKind = "CONSUME"
)

// Commit is one atomic consume+produce set.
// Corresponds to commits table in PostgreSQL and ledger_commits in ClickHouse.
type Commit struct {
	ID        string     // deterministic hash, see idhash.ComputeCommitID
	Kind      CommitKind // operation type
	Symbol    string     // token symbol
	Caller    Principal  // principal that proposed the commit
	Consumed  []string   // holding IDs consumed, in selection order
	Produced  []*Holding // holdings created
	CreatedAt int64      // commit timestamp (ms)
}

// ConsumedCount returns the fan-in of the commit.
func (c *Commit) ConsumedCount() int {
	return len(c.Consumed)
}
