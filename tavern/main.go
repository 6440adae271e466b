package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tavern/internal/cli/client"
	"tavern/internal/cli/config"
	"tavern/internal/cli/output"
)

type rootOptions struct {
	Format string
	Quiet  bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tavern",
		Short:         "Command line client for a tavern discussion board",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "", "output format (json|table|plain); defaults to table on a terminal")
	cmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "print only ids")

	cmd.AddCommand(newConnectCommand())
	cmd.AddCommand(newDisconnectCommand())
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newWhoAmICommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newCategoriesCommand(opts))
	cmd.AddCommand(newForumsCommand(opts))
	cmd.AddCommand(newTopicsCommand(opts))
	cmd.AddCommand(newPostsCommand(opts))
	cmd.AddCommand(newUsersCommand(opts))
	cmd.AddCommand(newAdminCommand(opts))
	return cmd
}

// connected returns a client for the configured default server.
func connected() (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	server, ok := cfg.Default()
	if !ok || server.URL == "" {
		return nil, errors.New("not connected; run: tavern connect <url> --api-key <key>")
	}
	return client.New(server.URL, server.APIKey), nil
}

func (o *rootOptions) print(cmd *cobra.Command, payload map[string]any) error {
	return output.Print(cmd.OutOrStdout(), payload, o.Format, o.Quiet)
}

func newConnectCommand() *cobra.Command {
	var apiKey string
	var inDir bool

	cmd := &cobra.Command{
		Use:   "connect <url>",
		Short: "Validate a server and API key and store them as the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL := strings.TrimSpace(args[0])
			if strings.TrimSpace(apiKey) == "" {
				return errors.New("missing --api-key")
			}
			if _, err := url.ParseRequestURI(rawURL); err != nil {
				return fmt.Errorf("invalid url: %w", err)
			}

			cl := client.New(rawURL, apiKey)
			var status map[string]any
			if err := cl.Get(cmd.Context(), "/api/v1/status", &status); err != nil {
				return fmt.Errorf("validate server: %w", err)
			}
			var who struct {
				Username string `json:"username"`
				Role     string `json:"role"`
			}
			if err := cl.Get(cmd.Context(), "/api/v1/whoami", &who); err != nil {
				return fmt.Errorf("validate api key: %w", err)
			}

			path, err := config.Path()
			if inDir {
				path, err = config.LocalPath()
			}
			if err != nil {
				return err
			}
			cfg, err := config.LoadFrom(path)
			if err != nil {
				return err
			}
			cfg.SetDefault(rawURL, apiKey, who.Username)
			if err := config.SaveTo(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected to %s as %s (%s)\n", rawURL, who.Username, who.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key")
	cmd.Flags().BoolVar(&inDir, "in-dir", false, "write config to ./.tavern/config.json in the current directory")
	return cmd
}

func newDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the default server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.ClearDefault()
			if err := config.Save(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := connected()
			if err != nil {
				return err
			}
			var payload map[string]any
			if err := cl.Get(cmd.Context(), "/api/v1/status", &payload); err != nil {
				return err
			}
			return opts.print(cmd, payload)
		},
	}
}

func newWhoAmICommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user behind the configured API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd, opts, "/api/v1/whoami")
		},
	}
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show board-wide counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd, opts, "/api/v1/stats")
		},
	}
}

func getAndPrint(cmd *cobra.Command, opts *rootOptions, path string) error {
	cl, err := connected()
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := cl.Get(cmd.Context(), path, &payload); err != nil {
		return err
	}
	return opts.print(cmd, payload)
}

func sendAndPrint(cmd *cobra.Command, opts *rootOptions, method, path string, body any) error {
	cl, err := connected()
	if err != nil {
		return err
	}
	var payload map[string]any
	switch method {
	case http.MethodPost:
		err = cl.Post(cmd.Context(), path, body, &payload)
	case http.MethodPut:
		err = cl.Put(cmd.Context(), path, body, &payload)
	case http.MethodPatch:
		err = cl.Patch(cmd.Context(), path, body, &payload)
	case http.MethodDelete:
		if err = cl.Delete(cmd.Context(), path); err == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		}
	default:
		return fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return err
	}
	return opts.print(cmd, payload)
}
