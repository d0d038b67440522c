// billingctl is the operator CLI: schema migration, plan seeding, and
// ops API key management.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/coresolution/billinghub/internal/authz"
	"github.com/coresolution/billinghub/internal/config"
	"github.com/coresolution/billinghub/internal/db"
	"github.com/coresolution/billinghub/internal/migration"
	"github.com/coresolution/billinghub/internal/observability"
	"github.com/coresolution/billinghub/internal/seed"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "billingctl",
		Short: "billinghub operator CLI",
	}
	root.AddCommand(newMigrateCmd(), newSeedPlansCmd(), newIssueOpsKeyCmd(), newRevokeOpsKeyCmd())
	return root
}

type env struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := observability.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	gdb, err := db.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &env{db: gdb, log: log, genID: node}, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			return migration.Run(cmd.Context(), e.db, e.log)
		},
	}
}

func newSeedPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-plans",
		Short: "Install the baseline pricing plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			if err := migration.Run(cmd.Context(), e.db, e.log); err != nil {
				return err
			}
			return seed.Plans(cmd.Context(), e.db, e.genID, e.log)
		},
	}
}

func newIssueOpsKeyCmd() *cobra.Command {
	var name, role string

	cmd := &cobra.Command{
		Use:   "issue-ops-key",
		Short: "Mint an operator API key (plaintext is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != authz.RoleOpsAdmin && role != authz.RoleOpsViewer {
				return fmt.Errorf("role must be %s or %s", authz.RoleOpsAdmin, authz.RoleOpsViewer)
			}

			e, err := newEnv()
			if err != nil {
				return err
			}

			plaintext, key, err := authz.NewKeyService(e.db, e.genID).Issue(context.Background(), name, role)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "id:   %s\nname: %s\nrole: %s\nkey:  %s\n",
				key.ID.String(), key.Name, key.Role, plaintext)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "human-readable key name")
	cmd.Flags().StringVar(&role, "role", authz.RoleOpsViewer, "ops_admin or ops_viewer")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newRevokeOpsKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-ops-key <key-id>",
		Short: "Revoke an operator API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := snowflake.ParseString(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id %q", args[0])
			}

			e, err := newEnv()
			if err != nil {
				return err
			}
			return authz.NewKeyService(e.db, e.genID).Revoke(context.Background(), id)
		},
	}
}
