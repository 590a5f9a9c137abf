package main

import (
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/spf13/cobra"
)

func newCompactCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compact <path>",
		Short: "Rewrite the file keeping only the latest data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {

			r, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			before, _, err := r.Stats()
			if err != nil {
				return err
			}

			compacted, err := r.Compact(cmd.Context())
			if err != nil {
				return err
			}
			if !compacted {
				return fmt.Errorf("realm '%s' is in use", args[0])
			}

			after, _, err := r.Stats()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "compacted %s: %d -> %d bytes\n", args[0], before, after)
			return nil
		},
	}
}

func newCopyCommand(opts *rootOptions) *cobra.Command {
	var newKey string

	cmd := &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Write a compacted copy, optionally with another encryption key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {

			key, err := parseKey(newKey)
			if err != nil {
				return err
			}

			r, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			err = r.WriteCopy(args[1], key)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "copied %s to %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&newKey, "new-key", "", "encryption key of the copy, 128 hex characters")

	return cmd
}

type dumpLine struct {
	Key    int64          `json:"key"`
	Values map[string]any `json:"values"`
}

func newDumpCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <path> <type>",
		Short: "Print every object of a type as json lines",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {

			r, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			t, err := r.Table(args[1])
			if err != nil {
				return err
			}
			all, err := t.All()
			if err != nil {
				return err
			}
			objects, err := all.Objects()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, o := range objects {
				values, err := o.Values()
				if err != nil {
					return err
				}
				err = json.MarshalWrite(w, dumpLine{Key: o.Key(), Values: values}, json.Deterministic(true))
				if err != nil {
					return err
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
}
