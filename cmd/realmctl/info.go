package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulldump/realmdb/schema"
	"github.com/fulldump/realmdb/utils"
)

func newInfoCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Show schema version, object types, counts and size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {

			r, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			version, err := r.Version()
			if err != nil {
				return err
			}
			total, used, err := r.Stats()
			if err != nil {
				return err
			}
			s, err := r.Schema()
			if err != nil {
				return err
			}

			counts := map[string]int{}
			for _, o := range s {
				t, err := r.Table(o.Name)
				if err != nil {
					return err
				}
				counts[o.Name], err = t.Count()
				if err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "path:           %s\n", args[0])
			fmt.Fprintf(w, "schema version: %d\n", r.SchemaVersionOrZero())
			fmt.Fprintf(w, "version:        %d\n", version)
			fmt.Fprintf(w, "size:           %d bytes (%d used)\n", total, used)
			fmt.Fprintf(w, "object types:   %d\n", len(counts))
			for _, name := range utils.GetKeys(counts) {
				fmt.Fprintf(w, "  %s\t%d\n", name, counts[name])
			}
			return nil
		},
	}
}

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <path>",
		Short: "Print the stored schema as yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {

			r, err := opts.open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			objects, err := r.Schema()
			if err != nil {
				return err
			}
			return schema.WriteYAML(cmd.OutOrStdout(), objects, r.SchemaVersionOrZero())
		},
	}
}
