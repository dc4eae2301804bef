package merkle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"anchord/internal/digest"
)

// Side records which side of the concatenation a sibling hash sits on.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Sibling is one step of a proof path, leaf to root.
type Sibling struct {
	Hash string `json:"hash"`
	Side Side   `json:"side"`
}

// Proof is the minimal sibling set needed to recompute the batch root from
// one leaf. Proofs are write-once records: once persisted they must verify
// against their batch root for the lifetime of the system.
type Proof struct {
	LeafHash digest.Value `json:"leaf_hash"`
	Siblings []Sibling    `json:"siblings"`
}

// Proof derives the inclusion proof for the leaf at index. Levels where the
// node was promoted unchanged contribute no sibling entry.
func (b *Batch) Proof(index int) (Proof, error) {
	if index < 0 || index >= len(b.Leaves) {
		return Proof{}, fmt.Errorf("proof: leaf index %d out of range (batch size %d)", index, len(b.Leaves))
	}

	siblings := make([]Sibling, 0, len(b.levels))
	idx := index
	for _, level := range b.levels[:len(b.levels)-1] {
		sibIdx := idx ^ 1
		if sibIdx < len(level) {
			side := SideRight
			if sibIdx < idx {
				side = SideLeft
			}
			siblings = append(siblings, Sibling{Hash: hex.EncodeToString(level[sibIdx]), Side: side})
		}
		idx /= 2
	}

	return Proof{LeafHash: b.Leaves[index].Hash, Siblings: siblings}, nil
}

// Verify recomputes the root from the leaf hash by ordered
// concatenate-and-hash and compares it to root.
func (p Proof) Verify(root digest.Value) bool {
	current, err := p.LeafHash.Bytes()
	if err != nil {
		return false
	}
	for _, sib := range p.Siblings {
		raw, err := hex.DecodeString(sib.Hash)
		if err != nil {
			return false
		}
		switch sib.Side {
		case SideLeft:
			current = innerHash(raw, current)
		case SideRight:
			current = innerHash(current, raw)
		default:
			return false
		}
	}
	return hex.EncodeToString(current) == root.Hex && root.Algo == p.LeafHash.Algo
}

// MarshalProof serializes a proof for storage.
func MarshalProof(p Proof) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal proof: %w", err)
	}
	return string(data), nil
}

// UnmarshalProof restores a stored proof.
func UnmarshalProof(raw string) (Proof, error) {
	var p Proof
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Proof{}, fmt.Errorf("unmarshal proof: %w", err)
	}
	return p, nil
}
