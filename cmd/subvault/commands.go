package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/auth"
	"github.com/xraph/subvault/extension"
	"github.com/xraph/subvault/lock"
	"github.com/xraph/subvault/store"
)

// runtime is the set of components every vault-backed command opens.
type runtime struct {
	store  store.Store
	locker lock.Locker
	auth   auth.Authorizer
	vault  *subvault.Vault
}

func openRuntime(ctx context.Context, cfg Config, logger *slog.Logger, opts ...subvault.Option) (*runtime, error) {
	s, err := extension.OpenStore(ctx, cfg.Config)
	if err != nil {
		return nil, err
	}
	l, err := extension.NewLocker(cfg.Config)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	a := extension.NewAuthorizer(cfg.Config)

	base := []subvault.Option{
		subvault.WithLogger(logger),
		subvault.WithLocker(l),
		subvault.WithAuthorizer(a),
		subvault.WithLockTTL(cfg.LockTTL),
	}
	return &runtime{
		store:  s,
		locker: l,
		auth:   a,
		vault:  subvault.New(s, append(base, opts...)...),
	}, nil
}

// close stops the vault, which closes the store, and releases the locker.
func (r *runtime) close() error {
	err := r.vault.Stop()
	if c, ok := r.locker.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(os.Getenv)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := extension.OpenStore(ctx, cfg.Config)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s store\n", cfg.Driver)
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	var params subvault.InitParams
	var minTopup int64

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the one-time vault settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(os.Getenv)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg.LogLevel))
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.vault.Start(ctx); err != nil {
				return err
			}
			params.MinTopup = subvault.Amount(minTopup)
			if err := rt.vault.Init(ctx, params); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized: admin=%s token=%s min_topup=%d\n",
				params.Admin, params.Token, minTopup)
			return nil
		},
	}
	cmd.Flags().StringVar(&params.Admin, "admin", "", "admin principal")
	cmd.Flags().StringVar(&params.Token, "token", "", "settlement token reference")
	cmd.Flags().Int64Var(&minTopup, "min-topup", 0, "minimum deposit amount")
	cmd.Flags().StringVar(&params.BillingService, "billing-service", "", "principal allowed to run interval charges")
	cmd.Flags().StringVar(&params.MeteringService, "metering-service", "", "principal allowed to run usage charges")
	_ = cmd.MarkFlagRequired("admin")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <principal>",
		Short: "Sign a bearer token for a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(os.Getenv)
			if err != nil {
				return err
			}
			jwtAuth, ok := extension.NewAuthorizer(cfg.Config).(*auth.JWTAuthorizer)
			if !ok {
				return fmt.Errorf("%s is not set", envJWTSecret)
			}
			tok, err := jwtAuth.Sign(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	return cmd
}
