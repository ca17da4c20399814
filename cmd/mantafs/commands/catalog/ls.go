package catalog

import (
	"github.com/spf13/cobra"

	"github.com/inftyai/mantafs/internal/cli/output"
	"github.com/inftyai/mantafs/pkg/fsadapter"
	"github.com/inftyai/mantafs/pkg/origin"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List catalog entries",
	Long: `List the catalog entries under a path of the mounted tree.

Only entries already in the catalog are shown; nothing is fetched from
origins.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

func runLs(cmd *cobra.Command, args []string) error {
	path := "/"
	if len(args) == 1 {
		path = args[0]
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

	ctx := cmd.Context()
	a := fsadapter.New(c, nil, origin.NewRegistry(), fsadapter.Options{})
	inode, err := a.Walk(ctx, path)
	if err != nil {
		return wrap("resolve path", err)
	}
	if !inode.IsDir() {
		return p.Print(newEntryList(inode))
	}

	children, err := c.ListChildren(ctx, inode.ID)
	if err != nil {
		return wrap("list", err)
	}
	if len(children) == 0 && p.Format() == output.FormatTable {
		p.Println("No entries.")
		return nil
	}
	return p.Print(newEntryList(children...))
}
