// Package merkle aggregates claimed outbox jobs into a verifiable batch.
//
// A batch hashes each evidence digest into a fixed-width leaf and builds a
// binary tree bottom-up. When a level holds an odd number of nodes the last
// node is promoted to the next level unchanged; nodes are never paired with
// themselves, so a promoted level contributes no sibling to a proof.
// Construction is deterministic in the order of its inputs, and a batch is
// immutable once closed.
package merkle

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"anchord/internal/digest"
)

// Item is one evidence entry destined for a batch, in claim order.
type Item struct {
	EvidenceID string
	Digest     digest.Value
}

// Leaf pairs an evidence id with its computed leaf hash.
type Leaf struct {
	EvidenceID string
	Hash       digest.Value
}

// Batch is a closed, immutable aggregation of leaves under one root.
type Batch struct {
	ID     string
	Leaves []Leaf
	Root   digest.Value

	// levels[0] holds the raw leaf hashes; the last level holds the root.
	levels [][][]byte
}

// CloseBatch computes leaf hashes for the items and builds the tree.
// The leaf hash is the digest of the evidence digest's raw bytes, not of
// the payload, so leaves stay fixed-width regardless of payload size.
func CloseBatch(items []Item) (*Batch, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("close batch: no items")
	}

	leaves := make([]Leaf, len(items))
	level := make([][]byte, len(items))
	for i, item := range items {
		raw, err := item.Digest.Bytes()
		if err != nil {
			return nil, fmt.Errorf("close batch: item %s: %w", item.EvidenceID, err)
		}
		leafHash := digest.Sum(raw)
		leaves[i] = Leaf{EvidenceID: item.EvidenceID, Hash: leafHash}
		raw, err = leafHash.Bytes()
		if err != nil {
			return nil, fmt.Errorf("close batch: item %s: %w", item.EvidenceID, err)
		}
		level[i] = raw
	}

	levels := [][][]byte{level}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, innerHash(level[i], level[i+1]))
			} else {
				// Odd node: promote unchanged.
				next = append(next, level[i])
			}
		}
		levels = append(levels, next)
		level = next
	}

	root := digest.Value{Algo: digest.SHA256, Hex: hex.EncodeToString(levels[len(levels)-1][0])}
	return &Batch{
		ID:     "batch_" + uuid.NewString(),
		Leaves: leaves,
		Root:   root,
		levels: levels,
	}, nil
}

// Size returns the number of leaves in the batch.
func (b *Batch) Size() int {
	return len(b.Leaves)
}

func innerHash(left, right []byte) []byte {
	joined := make([]byte, 0, len(left)+len(right))
	joined = append(joined, left...)
	joined = append(joined, right...)
	sum, _ := digest.Sum(joined).Bytes()
	return sum
}
