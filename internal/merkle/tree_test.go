package merkle_test

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"anchord/internal/digest"
	"anchord/internal/merkle"
)

func makeItems(n int) []merkle.Item {
	items := make([]merkle.Item, n)
	for i := range items {
		items[i] = merkle.Item{
			EvidenceID: fmt.Sprintf("ev-%d", i+1),
			Digest:     digest.Sum([]byte(fmt.Sprintf("payload-%d", i+1))),
		}
	}
	return items
}

func hashPair(a, b string) string {
	left, _ := hex.DecodeString(a)
	right, _ := hex.DecodeString(b)
	sum := sha256.Sum256(append(left, right...))
	return hex.EncodeToString(sum[:])
}

func TestCloseBatchRejectsEmpty(t *testing.T) {
	if _, err := merkle.CloseBatch(nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func TestCloseBatchDeterministic(t *testing.T) {
	items := makeItems(5)
	a, err := merkle.CloseBatch(items)
	if err != nil {
		t.Fatalf("CloseBatch failed: %v", err)
	}
	b, err := merkle.CloseBatch(items)
	if err != nil {
		t.Fatalf("CloseBatch failed: %v", err)
	}
	if a.Root != b.Root {
		t.Fatalf("roots differ across identical closes: %s vs %s", a.Root, b.Root)
	}
	for i := range items {
		pa, _ := a.Proof(i)
		pb, _ := b.Proof(i)
		if len(pa.Siblings) != len(pb.Siblings) {
			t.Fatalf("proof %d differs across identical closes", i)
		}
	}
}

func TestOrderIsSignificant(t *testing.T) {
	items := makeItems(4)
	a, _ := merkle.CloseBatch(items)
	swapped := []merkle.Item{items[1], items[0], items[2], items[3]}
	b, _ := merkle.CloseBatch(swapped)
	if a.Root == b.Root {
		t.Fatal("expected root to change when leaf order changes")
	}
}

func TestSingleLeafBatch(t *testing.T) {
	batch, err := merkle.CloseBatch(makeItems(1))
	if err != nil {
		t.Fatalf("CloseBatch failed: %v", err)
	}
	if batch.Root != batch.Leaves[0].Hash {
		t.Fatalf("size-1 batch: root %s != leaf %s", batch.Root, batch.Leaves[0].Hash)
	}
	proof, err := batch.Proof(0)
	if err != nil {
		t.Fatalf("Proof failed: %v", err)
	}
	if len(proof.Siblings) != 0 {
		t.Fatalf("size-1 proof should have zero siblings, got %d", len(proof.Siblings))
	}
	if !proof.Verify(batch.Root) {
		t.Fatal("size-1 proof failed verification")
	}
}

func TestFourLeafShape(t *testing.T) {
	batch, err := merkle.CloseBatch(makeItems(4))
	if err != nil {
		t.Fatalf("CloseBatch failed: %v", err)
	}
	l1 := batch.Leaves[0].Hash.Hex
	l2 := batch.Leaves[1].Hash.Hex
	l3 := batch.Leaves[2].Hash.Hex
	l4 := batch.Leaves[3].Hash.Hex

	wantRoot := hashPair(hashPair(l1, l2), hashPair(l3, l4))
	if batch.Root.Hex != wantRoot {
		t.Fatalf("root = %s, want H(H(L1,L2),H(L3,L4)) = %s", batch.Root.Hex, wantRoot)
	}

	proof, err := batch.Proof(0)
	if err != nil {
		t.Fatalf("Proof failed: %v", err)
	}
	if len(proof.Siblings) != 2 {
		t.Fatalf("L1 proof should have 2 siblings, got %d", len(proof.Siblings))
	}
	if proof.Siblings[0].Hash != l2 || proof.Siblings[0].Side != merkle.SideRight {
		t.Fatalf("L1 first sibling = (%s,%s), want (L2,right)", proof.Siblings[0].Hash, proof.Siblings[0].Side)
	}
	if proof.Siblings[1].Hash != hashPair(l3, l4) || proof.Siblings[1].Side != merkle.SideRight {
		t.Fatalf("L1 second sibling = (%s,%s), want (H(L3,L4),right)", proof.Siblings[1].Hash, proof.Siblings[1].Side)
	}
	if !proof.Verify(batch.Root) {
		t.Fatal("L1 proof failed verification")
	}
}

func TestOddLeafPromotion(t *testing.T) {
	// With three leaves the last node is promoted unchanged, so its proof
	// skips the leaf level entirely.
	batch, err := merkle.CloseBatch(makeItems(3))
	if err != nil {
		t.Fatalf("CloseBatch failed: %v", err)
	}
	l3 := batch.Leaves[2].Hash
	wantRoot := hashPair(
		hashPair(batch.Leaves[0].Hash.Hex, batch.Leaves[1].Hash.Hex),
		l3.Hex,
	)
	if batch.Root.Hex != wantRoot {
		t.Fatalf("size-3 root = %s, want promote-unchanged root %s", batch.Root.Hex, wantRoot)
	}

	proof, err := batch.Proof(2)
	if err != nil {
		t.Fatalf("Proof failed: %v", err)
	}
	if len(proof.Siblings) != 1 {
		t.Fatalf("promoted leaf proof should have 1 sibling, got %d", len(proof.Siblings))
	}
	if proof.Siblings[0].Side != merkle.SideLeft {
		t.Fatalf("promoted leaf sibling side = %s, want left", proof.Siblings[0].Side)
	}
	if !proof.Verify(batch.Root) {
		t.Fatal("promoted leaf proof failed verification")
	}
}

func TestAllProofsVerify(t *testing.T) {
	for n := 1; n <= 9; n++ {
		batch, err := merkle.CloseBatch(makeItems(n))
		if err != nil {
			t.Fatalf("CloseBatch(%d) failed: %v", n, err)
		}
		for i := 0; i < n; i++ {
			proof, err := batch.Proof(i)
			if err != nil {
				t.Fatalf("Proof(%d/%d) failed: %v", i, n, err)
			}
			if !proof.Verify(batch.Root) {
				t.Fatalf("proof %d of %d failed verification", i, n)
			}
		}
	}
}

func TestTamperedLeafFailsVerification(t *testing.T) {
	items := makeItems(4)
	batch, _ := merkle.CloseBatch(items)

	// Flip one bit in the source payload of leaf 2.
	tampered := digest.Sum([]byte("payload-\x33"))
	proof, _ := batch.Proof(1)
	proof.LeafHash = digest.Sum(mustBytes(t, tampered))
	if proof.Verify(batch.Root) {
		t.Fatal("tampered leaf proof should not verify against original root")
	}
}

func TestProofIndexOutOfRange(t *testing.T) {
	batch, _ := merkle.CloseBatch(makeItems(2))
	if _, err := batch.Proof(2); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
	if _, err := batch.Proof(-1); err == nil {
		t.Fatal("expected error for negative index")
	}
}

func TestProofRoundTrip(t *testing.T) {
	batch, _ := merkle.CloseBatch(makeItems(4))
	proof, _ := batch.Proof(3)
	raw, err := merkle.MarshalProof(proof)
	if err != nil {
		t.Fatalf("MarshalProof failed: %v", err)
	}
	restored, err := merkle.UnmarshalProof(raw)
	if err != nil {
		t.Fatalf("UnmarshalProof failed: %v", err)
	}
	if !restored.Verify(batch.Root) {
		t.Fatal("restored proof failed verification")
	}
}

func mustBytes(t *testing.T, v digest.Value) []byte {
	t.Helper()
	raw, err := v.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	return raw
}
