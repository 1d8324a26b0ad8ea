package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/guillermoBallester/hrquery/internal/adapter/mcp"
	"github.com/guillermoBallester/hrquery/internal/app"
	"github.com/guillermoBallester/hrquery/internal/config"
	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries state shared by the subcommands.
type cli struct {
	dbURL  string
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "hrquery",
		Short:         "Ask natural-language questions about an HR database",
		Long:          "hrquery discovers the schema of an HR database and answers questions about it with generated SQL, uploaded documents or both.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if c.dbURL == "" {
				c.dbURL = cfg.DatabaseURL
			}
			c.cfg = cfg
			c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: cfg.LogLevel,
			}))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.dbURL, "db", "", "database URL (defaults to DATABASE_URL)")

	root.AddCommand(
		c.discoverCmd(),
		c.askCmd(),
		c.mcpCmd(),
	)
	return root
}

func (c *cli) discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Discover the database schema and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(e *app.Engine) error {
				g, err := e.Discovery.Discover(cmd.Context(), c.dbURL)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), domain.Summarize(g))
			})
		},
	}
}

func (c *cli) askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(e *app.Engine) error {
				res, err := e.Query.Ask(cmd.Context(), args[0], c.dbURL)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), domain.Present(res))
			})
		},
	}
}

// mcpCmd serves the tools over stdio for local MCP clients.
func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(e *app.Engine) error {
				s := mcp.NewServer(version, mcp.Deps{
					Query:             e.Query,
					Discovery:         e.Discovery,
					DefaultConnString: c.dbURL,
				}, c.logger)
				return server.ServeStdio(s)
			})
		},
	}
}

func (c *cli) withEngine(ctx context.Context, fn func(*app.Engine) error) error {
	if c.dbURL == "" {
		return fmt.Errorf("no database: pass --db or set DATABASE_URL")
	}
	e, err := app.New(ctx, c.cfg, c.logger, app.Options{})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer e.Close()
	return fn(e)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
