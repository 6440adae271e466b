package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func newUsersCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List and manage users (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd, opts, "/api/v1/users")
		},
	}

	var role string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user; the API key is shown once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodPost, "/api/v1/users", map[string]any{
				"username": args[0],
				"role":     role,
			})
		},
	}
	add.Flags().StringVar(&role, "role", "member", "member, moderator or admin")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user without content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodDelete, "/api/v1/users/"+url.PathEscape(args[0]), nil)
		},
	}

	cmd.AddCommand(add, del)
	return cmd
}

func newAdminCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Aggregate maintenance (admin)",
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Report counters that disagree with the stored posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := connected()
			if err != nil {
				return err
			}
			var payload map[string]any
			if err := cl.Get(cmd.Context(), "/api/v1/admin/verify", &payload); err != nil {
				return err
			}
			if consistent, _ := payload["consistent"].(bool); consistent && !opts.Quiet && opts.Format != "json" {
				fmt.Fprintln(cmd.OutOrStdout(), "consistent")
				return nil
			}
			return opts.print(cmd, payload)
		},
	}

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Rewrite drifted counters from the stored posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendAndPrint(cmd, opts, http.MethodPost, "/api/v1/admin/reconcile", nil)
		},
	}

	cmd.AddCommand(verify, reconcile)
	return cmd
}
