package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://127.0.0.1:17390/api"

func main() {
	root := buildRoot(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string // Only used by serve
}

// buildRoot creates the root command; out and errOut receive command output.
func buildRoot(out, errOut io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	drodeCommand := command{out: out, errOut: errOut, global: globalFlags}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.SetErr(errOut)

	root.AddCommand(
		createServeCommand(globalFlags, &ServeFlags{}),
		createRunCommand(drodeCommand, &RunFlags{}),
		createKillCommand(drodeCommand, &KillFlags{}),
		createAskCommand(drodeCommand, &AskFlags{}),
		createOAuthCommand(drodeCommand, &OAuthFlags{}),
		createPortsCommand(drodeCommand, &PortsFlags{}),
		createActivityCommand(drodeCommand, &ActivityFlags{}),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "drode",
		Short: "Local backend daemon for the drode IDE",
		Long: `drode runs terminal commands and the assistant CLI for the IDE, streams
their output as events, manages OAuth connections and frees busy ports.

Examples:
  drode serve                                   # Start daemon
  drode run --command="npm test" --follow
  drode ask --project=/src/app --message="explain main.go" --follow
  drode oauth login github --wait
  drode ports list`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}

// bindAPIFlags adds the daemon connection flags shared by client commands.
// Parent commands pass persistent so their subcommands inherit them.
func bindAPIFlags(cmd *cobra.Command, f *APIFlags, persistent bool) {
	fs := cmd.Flags()
	if persistent {
		fs = cmd.PersistentFlags()
	}
	fs.StringVar(&f.APIUrl, "api-url", defaultAPIURL, "daemon API URL")
	fs.DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	fs.StringVar(&f.TokenFile, "token-file", "", "API token file (defaults to server.token_file of --config)")
}

// createRunCommand creates the run subcommand
func createRunCommand(drodeCommand command, runFlags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a shell command in the daemon",
		Long: `Run a shell command through the daemon's terminal engine. Output is
published on the terminal-output topic; with --follow it is printed here
until the command exits.

Examples:
  drode run --command="ls -la" --cwd=/src/app --follow
  drode run --session=dev --command="npm run dev" --env=PORT=3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drodeCommand.Run(cmd.Context(), *runFlags)
		},
	}

	cmd.Flags().StringVar(&runFlags.SessionID, "session", "", "session id (generated when empty)")
	cmd.Flags().StringVar(&runFlags.Command, "command", "", "shell command line (required)")
	cmd.Flags().StringVar(&runFlags.Cwd, "cwd", "", "absolute working directory")
	cmd.Flags().StringSliceVar(&runFlags.Env, "env", nil, "extra environment KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&runFlags.Follow, "follow", false, "print output until the command exits")
	bindAPIFlags(cmd, &runFlags.APIFlags, false)

	if err := cmd.MarkFlagRequired("command"); err != nil {
		panic(err)
	}
	return cmd
}

// createKillCommand creates the kill subcommand
func createKillCommand(drodeCommand command, killFlags *KillFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Kill a running session",
		Long: `Terminate the process group of a session started with run.

Examples:
  drode kill --session=dev`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drodeCommand.Kill(cmd.Context(), *killFlags)
		},
	}

	cmd.Flags().StringVar(&killFlags.SessionID, "session", "", "session id (required)")
	bindAPIFlags(cmd, &killFlags.APIFlags, false)

	if err := cmd.MarkFlagRequired("session"); err != nil {
		panic(err)
	}
	return cmd
}

// createAskCommand creates the ask subcommand
func createAskCommand(drodeCommand command, askFlags *AskFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Send a message to the assistant CLI",
		Long: `Invoke the assistant CLI in the configured project. The invocation id is
printed; with --follow the raw stream-json output is printed until the
assistant exits.

Examples:
  drode ask --project=/src/app --message="add tests for the parser"
  drode ask --message="continue" --resume=5d1c9e2a --follow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drodeCommand.Ask(cmd.Context(), *askFlags)
		},
	}

	cmd.Flags().StringVar(&askFlags.Message, "message", "", "message for the assistant (required)")
	cmd.Flags().StringVar(&askFlags.Resume, "resume", "", "assistant session id to resume")
	cmd.Flags().StringVar(&askFlags.Project, "project", "", "set the project directory first")
	cmd.Flags().BoolVar(&askFlags.Follow, "follow", false, "print output until the assistant exits")
	bindAPIFlags(cmd, &askFlags.APIFlags, false)

	if err := cmd.MarkFlagRequired("message"); err != nil {
		panic(err)
	}
	return cmd
}

// createOAuthCommand creates the oauth command with subcommands
func createOAuthCommand(drodeCommand command, oauthFlags *OAuthFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Provider connection commands",
		Long: `Connect to GitHub, Supabase or Vercel through a browser based PKCE flow
and inspect stored connections. Client ids come from the daemon's
environment (DRODE_GITHUB_CLIENT_ID and friends).

Examples:
  drode oauth login github --wait
  drode oauth status
  drode oauth token vercel
  drode oauth revoke supabase`,
	}
	bindAPIFlags(cmd, &oauthFlags.APIFlags, true)

	login := &cobra.Command{
		Use:   "login <provider>",
		Short: "Start an authorization flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *oauthFlags
			f.Provider = args[0]
			return drodeCommand.OAuthLogin(cmd.Context(), f)
		},
	}
	login.Flags().BoolVar(&oauthFlags.Wait, "wait", false, "wait for the flow to complete")
	login.Flags().DurationVar(&oauthFlags.Timeout, "timeout", 5*time.Minute, "how long --wait waits")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show connection status of every provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drodeCommand.OAuthStatus(cmd.Context(), *oauthFlags)
		},
	}

	token := &cobra.Command{
		Use:   "token <provider>",
		Short: "Print the stored access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *oauthFlags
			f.Provider = args[0]
			return drodeCommand.OAuthToken(cmd.Context(), f)
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <provider>",
		Short: "Forget the stored token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *oauthFlags
			f.Provider = args[0]
			return drodeCommand.OAuthRevoke(cmd.Context(), f)
		},
	}

	cmd.AddCommand(login, status, token, revoke)
	return cmd
}

// createPortsCommand creates the ports command with subcommands
func createPortsCommand(drodeCommand command, portsFlags *PortsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Inspect and free listening TCP ports",
		Long: `List listening TCP ports with their owning process, or kill whatever
holds a port.

Examples:
  drode ports list
  drode ports kill 3000`,
	}
	bindAPIFlags(cmd, &portsFlags.APIFlags, true)

	list := &cobra.Command{
		Use:   "list",
		Short: "List listening ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drodeCommand.PortsList(cmd.Context(), *portsFlags)
		},
	}

	kill := &cobra.Command{
		Use:   "kill <port>",
		Short: "Kill the processes holding a port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			f := *portsFlags
			f.Port = port
			return drodeCommand.PortsKill(cmd.Context(), f)
		},
	}

	cmd.AddCommand(list, kill)
	return cmd
}

// createActivityCommand creates the activity subcommand
func createActivityCommand(drodeCommand command, activityFlags *ActivityFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the activity log of a project",
		Long: `Print activity events of a project, newest first. Without --project the
daemon's current project is used.

Examples:
  drode activity --project=/src/app
  drode activity --project=/src/app --category=terminal --limit=20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drodeCommand.Activity(cmd.Context(), *activityFlags)
		},
	}

	cmd.Flags().StringVar(&activityFlags.Project, "project", "", "project path (defaults to the current project)")
	cmd.Flags().StringVar(&activityFlags.Category, "category", "", "only this category")
	cmd.Flags().Int64Var(&activityFlags.Before, "before", 0, "only events with a smaller id")
	cmd.Flags().IntVar(&activityFlags.Limit, "limit", 0, "maximum number of events (daemon default 100)")
	bindAPIFlags(cmd, &activityFlags.APIFlags, false)

	return cmd
}
