package main

import (
    "bufio"
    "context"
    "fmt"
    "os"
    "os/signal"
    "strings"
    "syscall"

    "github.com/spf13/cobra"
)

// Build-time variables injected via ldflags
var version = "dev"

// Entry point for the weather node
func main() {
    if err := newRootCmd().Execute(); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(1)
    }
}

// newRootCmd builds the command tree.  Running the root command without a
// subcommand is the same as "run".
func newRootCmd() *cobra.Command {
    var cfgFile string
    root := &cobra.Command{
        Use:           "weathernode",
        Short:         "Temperature/humidity node with a button-driven indicator",
        SilenceUsage:  true,
        SilenceErrors: true,
        RunE: func(cmd *cobra.Command, args []string) error {
            return runNode(cmd.Context(), cfgFile)
        },
    }
    root.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "path to config.json")

    root.AddCommand(&cobra.Command{
        Use:   "run",
        Short: "Boot the node and serve until interrupted",
        RunE: func(cmd *cobra.Command, args []string) error {
            return runNode(cmd.Context(), cfgFile)
        },
    })
    root.AddCommand(&cobra.Command{
        Use:   "hash-password [password]",
        Short: "Print a bcrypt hash for the users list in config.json",
        Args:  cobra.MaximumNArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            password := ""
            if len(args) == 1 {
                password = args[0]
            } else {
                line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
                if err != nil && line == "" {
                    return fmt.Errorf("read password: %w", err)
                }
                password = strings.TrimRight(line, "\r\n")
            }
            if password == "" {
                return fmt.Errorf("empty password")
            }
            fmt.Fprintln(cmd.OutOrStdout(), hashPassword(password))
            return nil
        },
    })
    root.AddCommand(&cobra.Command{
        Use:   "version",
        Short: "Print the version",
        Run: func(cmd *cobra.Command, args []string) {
            fmt.Fprintln(cmd.OutOrStdout(), version)
        },
    })
    return root
}

// runNode loads the configuration, wires the controller and blocks until
// SIGINT or SIGTERM.
func runNode(parent context.Context, cfgFile string) error {
    cfgMgr := NewConfigManager(cfgFile)
    if err := cfgMgr.Load(); err != nil {
        return fmt.Errorf("failed to load configuration: %w", err)
    }
    cfg := cfgMgr.Get()
    logger, err := NewEventLogger(cfg.LogFile, cfg.LogLevel)
    if err != nil {
        return fmt.Errorf("open log: %w", err)
    }
    defer logger.Close()

    ctrl, err := NewController(cfgMgr, logger)
    if err != nil {
        return fmt.Errorf("initialisation error: %w", err)
    }
    ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
    defer stop()
    logger.Log("weathernode %s starting", version)
    if err := ctrl.Run(ctx); err != nil {
        return fmt.Errorf("node exited: %w", err)
    }
    logger.Log("weathernode stopped")
    return nil
}
