package idhash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// CommitOutput is the part of a produced holding that identifies it before
// the store assigns a sequence number.
type CommitOutput struct {
	Owner  string
	Amount string // canonical fixed-point string
}

// ComputeCommitID computes a deterministic commit_id using SHA256.
// Formula: SHA256(kind|symbol|in1,in2,...|owner1:amount1,owner2:amount2,...|nonce)
// Returns base58-encoded hash.
func ComputeCommitID(
	kind string,
	symbol string,
	consumed []string,
	outputs []CommitOutput,
	nonce string,
) string {
	legs := make([]string, 0, len(outputs))
	for _, o := range outputs {
		legs = append(legs, o.Owner+":"+o.Amount)
	}

	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		kind,
		symbol,
		strings.Join(consumed, ","),
		strings.Join(legs, ","),
		nonce,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

// ComputeHoldingID computes the id of the output at index within a commit.
// Formula: SHA256(commit_id|output_index), base58-encoded.
func ComputeHoldingID(commitID string, outputIndex int) string {
	data := fmt.Sprintf("%s|%d", commitID, outputIndex)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
