package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// IssueOptions configures RunIssuance.
type IssueOptions struct {
	Outputs   OutputSet
	Overwrite bool
	// Ledger, when set, records the issued certificate.
	Ledger *Ledger
	Hooks  Hooks
}

// IssueReport describes a successful run.
type IssueReport struct {
	Artifacts Artifacts
	Files     []string
}

// RunIssuance runs the pipeline for cfg and, only if every step succeeds,
// writes the artifacts and records the run in the ledger. On failure no
// file is written.
func RunIssuance(ctx context.Context, cfg Config, opts IssueOptions) (*IssueReport, error) {
	auth := NewAuthority(cfg)
	if err := Run(ctx, auth, Plan(opts.Outputs), opts.Hooks); err != nil {
		return nil, err
	}
	art := auth.Artifacts()

	files, err := WriteOutputs(cfg, art, opts.Overwrite)
	if err != nil {
		return nil, fmt.Errorf("writing outputs: %w", err)
	}

	if opts.Ledger != nil {
		rec, err := NewIssuanceRecord(cfg, art, opts.Outputs, time.Now())
		if err != nil {
			return nil, err
		}
		if err := opts.Ledger.Record(ctx, rec); err != nil {
			return nil, err
		}
	}

	slog.Info("issued certificate", "mode", art.Mode, "serial", art.Serial, "files", len(files))
	return &IssueReport{Artifacts: art, Files: files}, nil
}
