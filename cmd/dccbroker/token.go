package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bcsanches/DCCLite-sub001/internal/auth"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/config"
)

type tokenOptions struct {
	subject string
	role    string
	ttl     time.Duration
}

func newTokenCmd(configPath *string) *cobra.Command {
	var opts tokenOptions
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with api.auth.secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(*configPath, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.subject, "subject", "", "operator name recorded with each command")
	cmd.Flags().StringVar(&opts.role, "role", string(auth.RoleOperator), "viewer, operator or maintainer")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 0, "token lifetime (default api.auth.token_ttl hours)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func runToken(configPath string, opts tokenOptions, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.Auth.Secret == "" {
		return errors.New("api.auth.secret is not set")
	}
	role, err := auth.ParseRole(opts.role)
	if err != nil {
		return err
	}
	ttl := opts.ttl
	if ttl <= 0 {
		ttl = time.Duration(cfg.API.Auth.TokenTTL) * time.Hour
	}

	token, err := auth.IssueToken(opts.subject, role, cfg.API.Auth.Secret, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}
