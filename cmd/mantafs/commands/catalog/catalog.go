// Package catalog implements the catalog subcommands.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/inftyai/mantafs/internal/cli/output"
	"github.com/inftyai/mantafs/internal/logger"
	"github.com/inftyai/mantafs/pkg/catalog"
	"github.com/inftyai/mantafs/pkg/catalog/store"
	"github.com/inftyai/mantafs/pkg/config"
)

// Cmd is the catalog command group.
var Cmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and edit the inode catalog",
	Long: `Inspect and edit the inode catalog used by mounts.

The badger backend allows one process at a time, so these commands only work
against it while no mount is running. sqlite and postgres catalogs can be
edited under a live mount.`,
}

var outputFormat string

func init() {
	Cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")

	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(lsCmd)
	Cmd.AddCommand(unlockStaleCmd)
}

// openCatalog loads the configuration and opens its catalog. Locks are
// left alone so a running mount is not disturbed.
func openCatalog(cmd *cobra.Command) (catalog.Catalog, *config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	// Keep stdout for command output.
	logger.InitWithWriter(cmd.ErrOrStderr(), "WARN", cfg.Logging.Format, false)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	c, err := store.Open(ctx, cfg.Catalog, store.KeepLocks())
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

func printer(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format), nil
}

// entry is the printed form of an inode.
type entry struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Path        string    `json:"path" yaml:"path"`
	Kind        string    `json:"kind" yaml:"kind"`
	Size        uint64    `json:"size" yaml:"size"`
	Source      string    `json:"source,omitempty" yaml:"source,omitempty"`
	Locked      bool      `json:"locked" yaml:"locked"`
	LastVisited time.Time `json:"last_visited" yaml:"last_visited"`
}

func newEntry(i *catalog.Inode) entry {
	return entry{
		ID:          i.ID.String(),
		Name:        i.Name,
		Path:        i.Path,
		Kind:        i.Kind.String(),
		Size:        i.Size,
		Source:      i.Source,
		Locked:      i.Lock,
		LastVisited: i.LastVisitedAt,
	}
}

// entryList renders as a table.
type entryList []entry

func (l entryList) Headers() []string {
	return []string{"ID", "Name", "Kind", "Size", "Source", "Locked", "Visited"}
}

func (l entryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		size := "-"
		if e.Kind != catalog.KindDirectory.String() {
			size = output.Bytes(e.Size)
		}
		locked := ""
		if e.Locked {
			locked = "yes"
		}
		rows = append(rows, []string{e.ID, e.Name, e.Kind, size, e.Source, locked, output.Ago(e.LastVisited)})
	}
	return rows
}

func newEntryList(inodes ...*catalog.Inode) entryList {
	l := make(entryList, 0, len(inodes))
	for _, i := range inodes {
		l = append(l, newEntry(i))
	}
	return l
}

func closeCatalog(c catalog.Catalog) {
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close catalog", logger.KeyError, err)
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
