package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"flow-validator/internal/model"
	"flow-validator/internal/parser"
)

func newDisconnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Estimate mean time to disconnect for port pairs under random link failures",
		RunE:  runDisconnect,
	}
	addTopologyFlags(cmd)
	cmd.Flags().StringArrayVar(&pairSpecs, "pair", nil, `Port pair "src,dst", e.g. "s1:2,s2:2" (repeatable, required)`)
	cmd.Flags().Float64Var(&rate, "rate", 1, "Per-link failure rate")
	cmd.Flags().IntVar(&iterations, "iterations", 1000, "Monte Carlo iterations per pair")
	cmd.Flags().StringVar(&serverAddr, "server", "", "Address of a running flow validator (default: estimate in process)")
	cmd.MarkFlagRequired("pair")
	return cmd
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pairs, err := parser.ParsePortPairs(pairSpecs)
	if err != nil {
		return err
	}

	v, closeFn, err := newValidator()
	if err != nil {
		return err
	}
	defer closeFn()
	if err := initialize(ctx, v); err != nil {
		return err
	}

	info, err := v.GetTimeToDisconnect(ctx, model.TimeToDisconnectRequest{Pairs: pairs, LinkFailureRate: rate, NumIterations: iterations})
	if info == nil {
		return err
	}
	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !info.Successful {
		slog.Error("Time to disconnect failed", "reason", info.Reason)
		return fmt.Errorf("time to disconnect: %s", info.Reason)
	}
	return nil
}
