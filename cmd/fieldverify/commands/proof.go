// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fieldverify/cmd/fieldverify/cli"
	"github.com/bureau-foundation/fieldverify/lib/aiverdict"
	"github.com/bureau-foundation/fieldverify/lib/jobstore"
	"github.com/bureau-foundation/fieldverify/lib/proof"
	"github.com/bureau-foundation/fieldverify/lib/proofstore"
)

var errAIDisabled = errors.New("AI review is not configured")

// disabledValidator stands in when proof.ai.url is empty; the pipeline
// turns its error into the AI-unavailable verdict.
type disabledValidator struct{}

func (disabledValidator) ValidateCleanliness(context.Context, []byte) (proof.Verdict, error) {
	return proof.Verdict{}, errAIDisabled
}

func proofCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "proof",
		Summary: "Complete jobs with photo proof",
		Subcommands: []*cli.Command{
			proofSubmitCommand(stdout),
			proofVerifyCommand(stdout),
		},
	}
}

type proofSubmitParams struct {
	connectivityParams
	Job   string `flag:"job,j" desc:"job to complete (required)"`
	Image string `flag:"image,i" desc:"photo of the collection point (required)"`
}

func proofSubmitCommand(stdout io.Writer) *cli.Command {
	var params proofSubmitParams
	return &cli.Command{
		Name:    "submit",
		Summary: "Store a photo, review it, and complete the job",
		Description: `Store a photo as proof, ask the AI classifier whether the site is
clean, and complete the job.

A flagged photo is still accepted; the verdict is reported so the worker
can retake it. Offline, or when the classifier fails, the photo passes
for manual back-office review.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("proof submit", &params)
		},
		Run: func(args []string) error {
			if params.Job == "" || params.Image == "" {
				return errors.New("--job and --image are required")
			}
			photo, err := os.ReadFile(params.Image)
			if err != nil {
				return err
			}
			return withDevice("proof/submit", params.deviceParams, params.Offline, func(ctx context.Context, d *device) error {
				job, ok := d.store.Job(params.Job)
				if !ok {
					return fmt.Errorf("%w: %s", jobstore.ErrJobNotFound, params.Job)
				}
				if job.Completed() {
					fmt.Fprintf(stdout, "%s is already completed\n", job.ID)
					return nil
				}

				photos, err := openProofStore(d)
				if err != nil {
					return err
				}
				validator, err := openValidator(d)
				if err != nil {
					return err
				}
				pipeline, err := proof.NewPipeline(proof.Config{
					Photos:    photos,
					Validator: validator,
					Completer: d.engine,
					Network:   d.monitor,
					Jobs:      d.store,
					Logger:    d.logger,
				})
				if err != nil {
					return err
				}

				session := pipeline.Start(job.ID)
				defer session.Close()
				if _, err := session.Capture(ctx, photo); err != nil {
					return err
				}
				state, err := session.WaitVerdict(ctx)
				if err != nil {
					return err
				}
				if state.Verdict != nil {
					flag := "clean"
					if state.Flagged() {
						flag = "flagged"
					}
					fmt.Fprintf(stdout, "verdict: %s (%s)\n", flag, state.Verdict.Comment)
				}

				state, outcome, err := session.Confirm(ctx)
				if errors.Is(err, proof.ErrJobCompleted) {
					fmt.Fprintf(stdout, "%s was completed meanwhile; photo discarded\n", job.ID)
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "photo %s\n", state.PhotoRef)
				writeOutcome(stdout, job.ID, outcome)
				return nil
			})
		},
	}
}

type proofVerifyParams struct {
	deviceParams
	Job string `flag:"job,j" desc:"job whose stored proof is checked (required)"`
}

func proofVerifyCommand(stdout io.Writer) *cli.Command {
	var params proofVerifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check a job's stored photo against its attestation",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("proof verify", &params)
		},
		Run: func(args []string) error {
			if params.Job == "" {
				return errors.New("--job is required")
			}
			return withDevice("proof/verify", params.deviceParams, true, func(ctx context.Context, d *device) error {
				job, ok := d.store.Job(params.Job)
				if !ok {
					return fmt.Errorf("%w: %s", jobstore.ErrJobNotFound, params.Job)
				}
				if job.ProofImageRef == "" {
					return fmt.Errorf("%s has no photo proof", job.ID)
				}
				photos, err := openProofStore(d)
				if err != nil {
					return err
				}
				if err := photos.Verify(job.ProofImageRef, job.ID); err != nil {
					return err
				}
				record, err := photos.Stat(job.ProofImageRef, job.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "%s: %s verified (%d bytes, %s, captured %s)\n",
					job.ID, record.Ref, record.Size, record.ContentType, record.CapturedAt.Format("2006-01-02 15:04:05"))
				return nil
			})
		},
	}
}

func openProofStore(d *device) (*proofstore.Store, error) {
	deviceKey, err := proofstore.LoadOrCreateDeviceKey(d.config.Proof.DeviceKeyFile)
	if err != nil {
		return nil, err
	}
	return proofstore.Open(proofstore.Config{
		Dir:        d.config.Paths.Proofs,
		DeviceKey:  deviceKey,
		Recipients: d.config.Proof.Recipients,
		Clock:      d.clock,
		Logger:     d.logger,
	})
}

func openValidator(d *device) (proof.Validator, error) {
	ai := d.config.Proof.AI
	if ai.URL == "" {
		return disabledValidator{}, nil
	}
	if d.config.AIAPIKey() == "" {
		d.logger.Warn("AI review disabled: API key variable is empty", "variable", ai.APIKeyEnv)
		return disabledValidator{}, nil
	}
	return aiverdict.New(aiverdict.Config{
		APIKey:     d.config.AIAPIKey(),
		BaseURL:    ai.URL,
		Model:      ai.Model,
		HTTPClient: &http.Client{Timeout: ai.Timeout},
		Logger:     d.logger,
	})
}
