package catalog

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inftyai/mantafs/internal/cli/prompt"
)

var forceUnlock bool

var unlockStaleCmd = &cobra.Command{
	Use:   "unlock-stale",
	Short: "Clear fetch locks left by a crashed mount",
	Long: `Clear every fetch lock recorded in the catalog.

Mounts clear stale locks on startup. Use this only when no mount is using the
catalog: clearing a live lock lets a second process fetch the same object.`,
	Args: cobra.NoArgs,
	RunE: runUnlockStale,
}

func init() {
	unlockStaleCmd.Flags().BoolVarP(&forceUnlock, "force", "f", false, "Skip confirmation prompt")
}

func runUnlockStale(cmd *cobra.Command, _ []string) error {
	ok, err := prompt.ConfirmWithForce("Clear all fetch locks in the catalog", forceUnlock)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	c, _, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer closeCatalog(c)

	p, err := printer(cmd)
	if err != nil {
		return err
	}

	n, err := c.ClearStaleLocks(cmd.Context())
	if err != nil {
		return wrap("clear locks", err)
	}
	if n == 0 {
		p.Warning("No fetch locks were set")
		return nil
	}
	p.Success(fmt.Sprintf("Cleared %d lock(s)", n))
	return nil
}
