package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/jdollar/box-go/pkg/box"
)

func NewLsCommand(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List the items of a folder",
		ArgsUsage: "[folder-id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "marker",
				Usage: "Page with markers instead of offsets",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Page size",
				Value: 100,
			},
		},
		Action: func(c *cli.Context) error {
			folderID := c.Args().First()
			if folderID == "" {
				folderID = box.RootFolderID
			}

			client, err := rt.Client(c.Context)
			if err != nil {
				return err
			}
			it, err := client.Folders.GetItems(c.Context, folderID, box.ItemsOptions{
				Limit:     c.Int("limit"),
				UseMarker: c.Bool("marker"),
			})
			if err != nil {
				return err
			}

			for {
				item, err := it.Next(c.Context)
				if err == box.Done {
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%s\t%s\t%d\t%s\n", item.Type, item.ID, item.Size, item.Name)
			}
		},
	}
}
