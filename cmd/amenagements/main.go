package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	inline   bool
	jsonMode bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "amenagements: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amenagements",
		Short: "Accommodation workflow operations CLI",
		Long: `amenagements drives the accommodation request workflows: it applies state transitions,
triggers decision editions and activity reports, runs the intent reconciliation sweep and
inspects the transition log and the dead-letter table.

By default messages are enqueued for the worker. With --inline they are handled in-process
until no message is left, which is useful for local runs and incident recovery.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVar(&inline, "inline", false, "Handle published messages in-process instead of enqueuing them")
	cmd.PersistentFlags().BoolVar(&jsonMode, "json", false, "Print JSON instead of tables")
	cmd.AddCommand(
		newMigrateCmd(),
		newTransitionCmd(),
		newTransitionsCmd(),
		newDecisionCmd(),
		newBilanCmd(),
		newReconcileCmd(),
		newDeadLettersCmd(),
		newRunCmd(),
	)
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run individual Go binaries directly",
	}
	cmd.AddCommand(
		newServiceRunner("worker", "./cmd/worker"),
		newServiceRunner("server", "./cmd/server"),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := append([]string{"run", path}, args...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
