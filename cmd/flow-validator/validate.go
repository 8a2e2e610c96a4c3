package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"flow-validator/internal/parser"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a policy against a topology and write per-tuple results",
		RunE:  runValidate,
	}
	addTopologyFlags(cmd)
	cmd.Flags().StringVar(&policyFile, "policy", "", "Policy file, .yaml/.yml or .json (required)")
	cmd.Flags().StringVar(&outFile, "out", "results.csv", "Output CSV file for all tuple results")
	cmd.Flags().StringVar(&violationsFile, "violations", "violations.csv", "Output CSV file for constraint violations")
	cmd.Flags().StringVar(&serverAddr, "server", "", "Address of a running flow validator (default: validate in process)")
	cmd.MarkFlagRequired("policy")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	ctx := cmd.Context()

	policy, err := parser.LoadPolicy(policyFile)
	if err != nil {
		slog.Error("Failed to load policy", "path", policyFile, "error", err)
		return err
	}
	slog.Info("Policy loaded", "statements", len(policy.Statements))

	v, closeFn, err := newValidator()
	if err != nil {
		return err
	}
	defer closeFn()
	if err := initialize(ctx, v); err != nil {
		return err
	}

	info, err := v.ValidatePolicy(ctx, *policy)
	if info == nil {
		return err
	}
	if len(info.Results) == 0 && !info.Successful {
		slog.Error("Policy validation failed", "reason", info.Reason)
		return fmt.Errorf("validate policy: %s", info.Reason)
	}

	slog.Info("Writing results", "output_file", outFile, "violations_file", violationsFile)
	if err := writeResults(outFile, info.Results); err != nil {
		return err
	}
	if err := writeViolations(violationsFile, info.Violations); err != nil {
		return err
	}
	slog.Info("Validation complete", "tuples", len(info.Results), "violations", len(info.Violations), "duration", time.Since(startTime))
	fmt.Fprintf(cmd.OutOrStdout(), "%d tuples, %d violations\n", len(info.Results), len(info.Violations))
	if !info.Successful {
		return fmt.Errorf("validate policy: %s", info.Reason)
	}
	return nil
}
