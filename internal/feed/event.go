// Package feed streams committed ledger changes to websocket subscribers.
package feed

import (
	"ztoken-ledger/internal/domain"
)

// CommitEvent is the wire form of a committed change.
type CommitEvent struct {
	CommitID  string         `json:"commit_id"`
	Kind      string         `json:"kind"`
	Symbol    string         `json:"symbol"`
	Caller    string         `json:"caller"`
	Consumed  []string       `json:"consumed"`
	Produced  []HoldingEvent `json:"produced"`
	CreatedAt int64          `json:"created_at"`
}

// HoldingEvent is the wire form of a produced holding.
type HoldingEvent struct {
	ID     string `json:"id"`
	Seq    int64  `json:"seq"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

// EventFromCommit converts a commit to its wire form.
func EventFromCommit(c *domain.Commit) CommitEvent {
	ev := CommitEvent{
		CommitID:  c.ID,
		Kind:      string(c.Kind),
		Symbol:    c.Symbol,
		Caller:    c.Caller.String(),
		Consumed:  append([]string{}, c.Consumed...),
		Produced:  make([]HoldingEvent, len(c.Produced)),
		CreatedAt: c.CreatedAt,
	}
	for i, h := range c.Produced {
		ev.Produced[i] = HoldingEvent{
			ID:     h.ID,
			Seq:    h.Seq,
			Owner:  h.Owner,
			Amount: h.Amount.String(),
		}
	}
	return ev
}
