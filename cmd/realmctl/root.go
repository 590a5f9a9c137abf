package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fulldump/realmdb/bootstrap"
	"github.com/fulldump/realmdb/realm"
	"github.com/fulldump/realmdb/storage"
)

type rootOptions struct {
	Key      string
	Backend  string
	LogLevel string

	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "realmctl",
		Short: "Inspect and maintain realm files",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := bootstrap.NewLogger(opts.LogLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Key, "key", "", "encryption key, 128 hex characters")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", storage.BackendJSONL, "storage backend (jsonl|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level")

	cmd.AddCommand(newInfoCommand(opts))
	cmd.AddCommand(newSchemaCommand(opts))
	cmd.AddCommand(newCompactCommand(opts))
	cmd.AddCommand(newCopyCommand(opts))
	cmd.AddCommand(newDumpCommand(opts))

	return cmd
}

func parseKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return key, nil
}

// open opens an existing realm with whatever schema it has.
func (o *rootOptions) open(ctx context.Context, path string) (*realm.Realm, error) {

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("realm '%s': %w", path, err)
	}

	key, err := parseKey(o.Key)
	if err != nil {
		return nil, err
	}

	return realm.Open(ctx, realm.Config{
		Path:          path,
		EncryptionKey: key,
		Backend:       o.Backend,
		SchemaVersion: realm.DynamicSchema,
		Logger:        o.logger,
	})
}
