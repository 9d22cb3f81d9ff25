package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nucleus/replication-worker/internal/config"
	"github.com/nucleus/replication-worker/internal/featureflag"
	"github.com/nucleus/replication-worker/internal/secrets"
)

// newFlagsCommand evaluates the runtime secret persistence flag the way the
// worker would for a connection scope.
func newFlagsCommand(opts *rootOptions) *cobra.Command {
	var orgID, workspaceID, connectionID string

	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Evaluate feature flags for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" {
				return errors.New("--org is required")
			}
			cfg := config.Load()
			flags, _, err := newFlags(cfg)
			if err != nil {
				return err
			}
			resolver := secrets.NewResolver(nil, nil, nil, flags, retryPolicy(cfg))
			enabled := resolver.UsesRuntimePersistence(&secrets.Scope{
				OrganizationID: orgID,
				WorkspaceID:    workspaceID,
				ConnectionID:   connectionID,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%t\n", featureflag.UseRuntimeSecretPersistence.Key, enabled)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "organization id")
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "workspace id")
	cmd.Flags().StringVar(&connectionID, "connection", "", "connection id")
	return cmd
}

// newStateHistoryCommand lists archived pre-backfill state snapshots.
func newStateHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		connectionID string
		limit        int
		show         bool
	)

	cmd := &cobra.Command{
		Use:   "state-history",
		Short: "List archived state snapshots of a connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if connectionID == "" {
				return errors.New("--connection is required")
			}
			cfg := config.Load()
			archive, err := newArchive(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if archive == nil {
				return errors.New("state archive is disabled (STATE_ARCHIVE_ENABLED=false)")
			}

			keys, err := archive.History(cmd.Context(), connectionID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				fmt.Fprintln(out, "no archived state")
				return nil
			}
			for _, key := range keys {
				fmt.Fprintln(out, key)
				if !show {
					continue
				}
				st, err := archive.Load(cmd.Context(), key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  type=%s streams=%d\n", st.Type, len(st.StreamDescriptors()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&connectionID, "connection", "", "connection id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of snapshots to list")
	cmd.Flags().BoolVar(&show, "show", false, "print a summary of each snapshot")
	return cmd
}
