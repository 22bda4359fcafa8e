package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, _ := buildRoot()
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildRoot returns the command tree and the command state shared by it.
func buildRoot() (*cobra.Command, *command) {
	globalFlags := &GlobalFlags{}
	c := newCommand(globalFlags)

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(c, globalFlags),
		createNotifyCommand(c),
		createRefreshCommand(c),
		createStatusCommand(c),
		createVerifyCommand(c),
		createProfilesCommand(c),
		createTagsCommand(c),
		createRunCommand(c),
	)
	return root, c
}

// createRootCommand creates the root command with persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "glassd",
		Short: "ShaderGlass overlay launcher",
		Long: `glassd launches a ShaderGlass overlay when a tagged game starts and
stops it when the game exits. Profiles are selected with tags such as
"[ShaderGlass] crt-royale"; "[ShaderGlass] NoFullscreen" and
"[ShaderGlass] PausedMode" adjust how the overlay starts.

Examples:
  glassd serve glassd.toml                           # Start daemon
  glassd notify starting --entity 42 --tag "[ShaderGlass] crt"
  glassd refresh --config glassd.toml                # Sync profile tags
  glassd run --config glassd.toml --tag "[ShaderGlass] crt" -- ./game`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://127.0.0.1:8787/api)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return root
}

func createServeCommand(c *command, globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the glassd daemon",
		Long: `Start the daemon serving the host integration API.

Examples:
  glassd serve glassd.toml
  glassd serve --config glassd.toml --daemonize   # pidfile/logfile from [server]`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return c.Serve(cmd.Context(), *serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

func createNotifyCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send host lifecycle callbacks to the daemon",
	}

	starting := &NotifyFlags{}
	startCmd := &cobra.Command{
		Use:   "starting",
		Short: "Report that an entity is starting",
		Long: `Report that an entity is starting. Without --tag the daemon reads the
entity's tags from its store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.NotifyStarting(cmd.Context(), *starting)
		},
	}
	startCmd.Flags().StringVar(&starting.EntityID, "entity", "", "entity id (required)")
	startCmd.Flags().StringArrayVar(&starting.Tags, "tag", nil, "entity tag (repeatable)")
	_ = startCmd.MarkFlagRequired("entity")

	stopped := &NotifyFlags{}
	stopCmd := &cobra.Command{
		Use:   "stopped",
		Short: "Report that an entity stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.NotifyStopped(cmd.Context(), *stopped)
		},
	}
	stopCmd.Flags().StringVar(&stopped.EntityID, "entity", "", "entity id (required)")
	_ = stopCmd.MarkFlagRequired("entity")

	cmd.AddCommand(startCmd, stopCmd)
	return cmd
}

func createRefreshCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Sync profile tags with the profiles directory",
		Long: `Create a tag for every profile file and delete tags of ignored profiles.
Runs through the daemon when --api-url is given, otherwise against the
configured store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Refresh(cmd.Context())
		},
	}
}

func createStatusCommand(c *command) *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show running overlays",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.EntityID, "entity", "", "show a single entity")
	return cmd
}

func createVerifyCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the overlay executable and profiles directory settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Verify()
		},
	}
}

func createProfilesCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List and ignore profiles",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List profile files",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.ProfilesList()
			},
		},
		&cobra.Command{
			Use:   "ignore NAME",
			Short: "Exclude a profile from tag creation",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.ProfilesIgnore(args[0], true)
			},
		},
		&cobra.Command{
			Use:   "unignore NAME",
			Short: "Include a previously ignored profile again",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.ProfilesIgnore(args[0], false)
			},
		},
	)
	return cmd
}

func createTagsCommand(c *command) *cobra.Command {
	f := &TagFlags{}
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Maintain the tag database",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List tags, or the tags of one entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.TagsList(cmd.Context(), *f)
		},
	}
	list.Flags().StringVar(&f.Prefix, "prefix", "", "only tags starting with prefix (case-insensitive)")
	assign := &cobra.Command{
		Use:   "assign NAME",
		Short: "Assign a tag to an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.TagsAssign(cmd.Context(), *f, args[0])
		},
	}
	unassign := &cobra.Command{
		Use:   "unassign NAME",
		Short: "Remove a tag from an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.TagsUnassign(cmd.Context(), *f, args[0])
		},
	}
	cmd.PersistentFlags().StringVar(&f.EntityID, "entity", "", "entity id")
	cmd.AddCommand(list, assign, unassign)
	return cmd
}

func createRunCommand(c *command) *cobra.Command {
	f := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run [--tag T ...] -- COMMAND [ARGS...]",
		Short: "Run a game with its overlay",
		Long: `Launch the overlay selected by the tags, run the command and stop the
overlay when the command exits. With --entity and no --tag the entity's tags
are read from the store.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context(), *f, args)
		},
	}
	cmd.Flags().StringVar(&f.EntityID, "entity", "", "entity id (default: a generated id)")
	cmd.Flags().StringArrayVar(&f.Tags, "tag", nil, "entity tag (repeatable)")
	return cmd
}
