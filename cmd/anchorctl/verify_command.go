package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"anchord/internal/api"
	"anchord/internal/digest"
	"anchord/internal/merkle"
	"anchord/internal/outbox"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <evidence-id>",
		Short: "Recompute a Merkle proof locally and check it against the anchored root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			evidenceID := args[0]

			bundle, err := ctx.client().GetProof(cmd.Context(), evidenceID)
			if err != nil {
				// Read straight from the database when the daemon is down.
				storeErr := ctx.withStore(func(store *outbox.Store) error {
					stored, bundleErr := store.ProofBundle(cmd.Context(), evidenceID)
					if bundleErr != nil {
						return bundleErr
					}
					converted := api.FromBundle(stored)
					bundle = &converted
					return nil
				})
				if storeErr != nil {
					return storeErr
				}
			}

			result, err := verifyBundle(bundle)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Evidence: %s\n", bundle.EvidenceID)
			fmt.Fprintf(out, "Digest:   %s\n", bundle.Digest)
			fmt.Fprintf(out, "Batch:    %s (leaf %d)\n", bundle.BatchID, bundle.LeafIndex)
			fmt.Fprintf(out, "Root:     %s\n", bundle.Root)
			for _, ref := range bundle.TxRefs {
				fmt.Fprintf(out, "Anchor:   %s tx %s (%s)\n", ref.Provider, ref.TxID, ref.Status)
			}
			if !result {
				fmt.Fprintln(out, "Proof:    INVALID")
				return fmt.Errorf("proof for %s does not verify against root %s", bundle.EvidenceID, bundle.Root)
			}
			fmt.Fprintln(out, "Proof:    VALID")
			return nil
		},
	}
}

// verifyBundle checks that the proof's leaf was derived from the evidence
// digest and that the sibling path recomputes the batch root.
func verifyBundle(bundle *api.ProofBundle) (bool, error) {
	value, err := digest.Parse(bundle.Digest)
	if err != nil {
		return false, fmt.Errorf("parse evidence digest: %w", err)
	}
	root, err := digest.Parse(bundle.Root)
	if err != nil {
		return false, fmt.Errorf("parse batch root: %w", err)
	}
	proof, err := merkle.UnmarshalProof(bundle.Proof)
	if err != nil {
		return false, fmt.Errorf("decode proof: %w", err)
	}

	raw, err := value.Bytes()
	if err != nil {
		return false, fmt.Errorf("decode evidence digest: %w", err)
	}
	if digest.Sum(raw) != proof.LeafHash {
		return false, nil
	}
	return proof.Verify(root), nil
}
