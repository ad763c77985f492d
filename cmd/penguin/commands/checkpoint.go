package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/penguin-run/penguin/internal/checkpoint"
	"github.com/penguin-run/penguin/internal/config"
	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/internal/storage"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and restore session checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List checkpoints captured for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointList,
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <session-id> <checkpoint-id>",
	Short: "Restore a checkpoint into a new session, leaving the source session's history unchanged",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheckpointRestore,
}

var checkpointBranchCmd = &cobra.Command{
	Use:   "branch <session-id> <checkpoint-id>",
	Short: "Fork a new session from a checkpoint",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheckpointBranch,
}

func init() {
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
	checkpointCmd.AddCommand(checkpointBranchCmd)
}

func newCheckpointManager() (*checkpoint.Manager, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	store := storage.New(paths.StoragePath())
	sessions := session.New(store)
	return checkpoint.New(store, sessions, appConfig.Checkpoint), nil
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	mgr, err := newCheckpointManager()
	if err != nil {
		return err
	}
	checkpoints, err := mgr.List(context.Background(), args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tREASON\tLABEL\tCREATED")
	for _, c := range checkpoints {
		created := time.UnixMilli(c.Created).Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Reason, c.Label, created)
	}
	return nil
}

func runCheckpointRestore(cmd *cobra.Command, args []string) error {
	mgr, err := newCheckpointManager()
	if err != nil {
		return err
	}
	sess, err := mgr.Restore(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("session %s restored to checkpoint %s\n", sess.ID, args[1])
	return nil
}

func runCheckpointBranch(cmd *cobra.Command, args []string) error {
	mgr, err := newCheckpointManager()
	if err != nil {
		return err
	}
	sess, err := mgr.Branch(context.Background(), args[0], args[1], "")
	if err != nil {
		return err
	}
	fmt.Printf("branched session %s from checkpoint %s\n", sess.ID, args[1])
	return nil
}
