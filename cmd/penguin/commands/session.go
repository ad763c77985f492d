package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/penguin-run/penguin/internal/config"
	"github.com/penguin-run/penguin/internal/session"
	"github.com/penguin-run/penguin/internal/storage"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect sessions and their rollover/branch lineage",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known sessions",
	RunE:  runSessionList,
}

var sessionLineageCmd = &cobra.Command{
	Use:   "lineage <session-id>",
	Short: "Print the rollover chain a session descends from, root first",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionLineage,
}

func init() {
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionLineageCmd)
}

func newSessionStore() (*session.Store, error) {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}
	return session.New(storage.New(paths.StoragePath())), nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	sessions, err := newSessionStore()
	if err != nil {
		return err
	}
	list, err := sessions.List(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, s := range list {
		updated := time.UnixMilli(s.Time.Updated).Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Title, updated)
	}
	return nil
}

func runSessionLineage(cmd *cobra.Command, args []string) error {
	sessions, err := newSessionStore()
	if err != nil {
		return err
	}
	chain, err := sessions.Lineage(context.Background(), args[0])
	if err != nil {
		return err
	}

	ids := make([]string, len(chain))
	for i, s := range chain {
		ids[i] = s.ID
	}
	fmt.Println(strings.Join(ids, " -> "))
	return nil
}
