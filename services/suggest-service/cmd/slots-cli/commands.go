package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/slotsuggest/libs/grpcx"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/grpcserver"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/slots"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slots-cli",
		Short:         "Compute appointment slots from an availability JSON file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newComputeCmd(), newValidateCmd(), newRemoteCmd())
	return root
}

func newComputeCmd() *cobra.Command {
	var (
		file        string
		maxSlots    int
		maxSpanDays int
	)
	c := &cobra.Command{
		Use:   "compute",
		Short: "Run the slot engine locally and print the slots as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec(cmd.InOrStdin(), file, maxSpanDays)
			if err != nil {
				return err
			}
			candidates, err := slots.ComputeSlots(spec, maxSlots)
			if err != nil {
				return err
			}
			wire := make([]slots.WireSlot, 0, len(candidates))
			for _, cand := range candidates {
				wire = append(wire, cand.Wire())
			}
			return printJSON(cmd.OutOrStdout(), wire)
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "-", "availability JSON file, - for stdin")
	c.Flags().IntVar(&maxSlots, "max", 5, "maximum number of slots")
	c.Flags().IntVar(&maxSpanDays, "max-span-days", model.DefaultMaxDateSpanDays, "longest accepted date range")
	return c
}

func newValidateCmd() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:   "validate",
		Short: "Check an availability JSON file and print it with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec(cmd.InOrStdin(), file, 0)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), spec)
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "-", "availability JSON file, - for stdin")
	return c
}

func newRemoteCmd() *cobra.Command {
	var (
		addr     string
		file     string
		maxSlots int
		timeout  time.Duration
	)
	c := &cobra.Command{
		Use:   "remote",
		Short: "Compute slots through a running suggest-service over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec(cmd.InOrStdin(), file, 0)
			if err != nil {
				return err
			}
			conn, err := grpcx.Dial(addr, grpcx.DialOptions{})
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			wire, err := grpcserver.NewClient(conn).ComputeSlots(ctx, spec, maxSlots)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), wire)
		},
	}
	c.Flags().StringVar(&addr, "addr", "localhost:9090", "suggest-service gRPC address")
	c.Flags().StringVarP(&file, "file", "f", "-", "availability JSON file, - for stdin")
	c.Flags().IntVar(&maxSlots, "max", 5, "maximum number of slots")
	c.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return c
}

func loadSpec(stdin io.Reader, file string, maxSpanDays int) (model.AvailabilitySpec, error) {
	var (
		raw []byte
		err error
	)
	if file == "" || file == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return model.AvailabilitySpec{}, err
	}

	var spec model.AvailabilitySpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return model.AvailabilitySpec{}, fmt.Errorf("parse availability: %w", err)
	}
	if err := model.Validate(spec, maxSpanDays); err != nil {
		return model.AvailabilitySpec{}, err
	}
	return spec, nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
