package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"anchord/internal/api"
	"anchord/internal/digest"
	"anchord/internal/ingest"
	"anchord/internal/outbox"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var evidenceID string
	var digestFlag string
	var mimeType string

	cmd := &cobra.Command{
		Use:   "submit [file]",
		Short: "Digest a file and enqueue it for anchoring",
		Long: "Submit computes the SHA-256 digest of a file and enqueues it through the\n" +
			"running daemon. Pass --digest to enqueue a precomputed digest instead of a file.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.EvidenceRequest{
				EvidenceID:  strings.TrimSpace(evidenceID),
				PayloadMIME: strings.TrimSpace(mimeType),
			}

			switch {
			case strings.TrimSpace(digestFlag) != "":
				value, err := digest.Parse(digestFlag)
				if err != nil {
					return err
				}
				req.Digest = value.String()
			case len(args) == 1:
				value, err := digestFile(args[0])
				if err != nil {
					return err
				}
				req.Digest = value.String()
				req.Metadata = map[string]string{"filename": filepath.Base(args[0])}
			default:
				return fmt.Errorf("provide a file path or --digest")
			}

			if req.EvidenceID == "" {
				req.EvidenceID = uuid.NewString()
			}

			resp, err := ctx.client().SubmitEvidence(cmd.Context(), req)
			if err != nil {
				// Enqueue straight into the database when the daemon is down.
				storeErr := ctx.withStore(func(store *outbox.Store) error {
					rec, recErr := ingest.RecordFromEnvelope(&ingest.Envelope{
						EvidenceID:  req.EvidenceID,
						Digest:      req.Digest,
						PayloadMIME: req.PayloadMIME,
						Metadata:    req.Metadata,
					})
					if recErr != nil {
						return recErr
					}
					job, createErr := store.CreateJob(cmd.Context(), rec)
					if errors.Is(createErr, outbox.ErrDuplicateEvidence) {
						existing, lookupErr := store.GetJobByDigest(cmd.Context(), rec.Digest)
						if lookupErr != nil || existing == nil {
							return createErr
						}
						converted := api.FromJob(existing)
						resp = &api.SubmitResponse{Job: converted, Duplicate: true}
						return nil
					}
					if createErr != nil {
						return createErr
					}
					converted := api.FromJob(job)
					resp = &api.SubmitResponse{Job: converted}
					return nil
				})
				if storeErr != nil {
					return storeErr
				}
			}

			out := cmd.OutOrStdout()
			if resp.Duplicate {
				fmt.Fprintf(out, "Evidence already enqueued as %s (status %s)\n", resp.Job.EvidenceID, resp.Job.Status)
				return nil
			}
			fmt.Fprintf(out, "Enqueued %s\n", resp.Job.EvidenceID)
			fmt.Fprintf(out, "  digest: %s\n", resp.Job.Digest)
			fmt.Fprintf(out, "  status: %s\n", resp.Job.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&evidenceID, "id", "", "Evidence identifier (generated when omitted)")
	cmd.Flags().StringVar(&digestFlag, "digest", "", "Precomputed digest (algo:hex or bare hex)")
	cmd.Flags().StringVar(&mimeType, "mime", "", "Payload MIME type")
	return cmd
}

func digestFile(path string) (digest.Value, error) {
	file, err := os.Open(path)
	if err != nil {
		return digest.Value{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return digest.Value{}, fmt.Errorf("digest %s: %w", path, err)
	}
	return digest.Value{Algo: digest.SHA256, Hex: hex.EncodeToString(h.Sum(nil))}, nil
}
