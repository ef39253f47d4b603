package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/jdollar/box-go/pkg/box"
)

const (
	folderFlag = "folder"
	keepFlag   = "keep"
	nameFlag   = "name"
)

// isFolderID reports whether s looks like a folder ID rather than a name.
func isFolderID(s string) bool {
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// resolveFolder returns the ID of the folder given by ID or by name. A folder
// looked up by name is created in the root folder when missing.
func resolveFolder(ctx context.Context, log logrus.FieldLogger, client *box.Client, folder string) (string, error) {
	if folder == "" {
		return box.RootFolderID, nil
	}
	if isFolderID(folder) {
		return folder, nil
	}

	log.WithField("folder", folder).Info("Looking for folder")
	item, err := client.Search.FindFolder(ctx, folder)
	if err != nil {
		return "", err
	}
	if item != nil {
		return item.ID, nil
	}

	log.WithField("folder", folder).Info("No folder found, creating it")
	created, err := client.Folders.Create(ctx, box.RootFolderID, folder)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// pruneFolder deletes the files of folderID beyond the first keep ones in
// descending name order. Uploads named by timestamp keep the newest.
func pruneFolder(ctx context.Context, log logrus.FieldLogger, client *box.Client, folderID string, keep int) error {
	it, err := client.Folders.GetItems(ctx, folderID, box.ItemsOptions{
		Limit:     1000,
		Sort:      "name",
		Direction: "DESC",
	})
	if err != nil {
		return err
	}

	kept := 0
	for {
		item, err := it.Next(ctx)
		if err == box.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if item.Type != "file" {
			continue
		}
		if kept < keep {
			kept++
			continue
		}

		log.WithFields(logrus.Fields{
			"file_id": item.ID,
			"name":    item.Name,
		}).Info("Removing old file")
		if err := client.Files.Delete(ctx, item.ID); err != nil {
			return err
		}
	}
}

// prepareUpload returns the file to upload for paths: the file itself when
// paths is a single regular file, a temporary tarball of everything
// otherwise. cleanup removes the temporary file.
func prepareUpload(log logrus.FieldLogger, paths []string, now time.Time) (path string, cleanup func(), err error) {
	cleanup = func() {}
	if len(paths) == 1 {
		info, err := os.Stat(paths[0])
		if err == nil && info.Mode().IsRegular() {
			return paths[0], cleanup, nil
		}
	}

	name := strconv.FormatInt(now.UTC().UnixMilli(), 10) + ".tar.gz"
	dir, err := os.MkdirTemp("", "box-upload")
	if err != nil {
		return "", cleanup, err
	}
	cleanup = func() { os.RemoveAll(dir) }

	path = filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", cleanup, err
	}
	if err := createArchive(log, paths, out); err != nil {
		out.Close()
		return "", cleanup, err
	}
	return path, cleanup, out.Close()
}

func uploadCommandAction(rt *Runtime, c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return errors.New("nothing to upload")
	}
	log := rt.Log

	path, cleanup, err := prepareUpload(log, paths, time.Now())
	defer cleanup()
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}

	client, err := rt.Client(c.Context)
	if err != nil {
		return err
	}
	folderID, err := resolveFolder(c.Context, log, client, c.String(folderFlag))
	if err != nil {
		return err
	}

	name := c.String(nameFlag)
	if name == "" {
		name = filepath.Base(path)
	}

	log.WithFields(logrus.Fields{
		"file":      path,
		"size":      info.Size(),
		"folder_id": folderID,
	}).Info("Uploading")
	uploaded, err := client.Files.Upload(c.Context, folderID, name, file, info.Size(), box.UploaderOptions{
		Parallelism: rt.Config.Upload.Parallelism,
		Attributes: map[string]interface{}{
			"content_modified_at": info.ModTime().UTC().Format(time.RFC3339),
		},
		Progress: func(p box.Progress) {
			log.WithFields(logrus.Fields{
				"parts": p.PartsUploaded,
				"of":    p.TotalParts,
				"bytes": p.BytesUploaded,
			}).Info("Upload progress")
		},
		Logger: log,
	})
	if err != nil {
		return err
	}
	log.WithField("file_id", uploaded.ID).Info("Finished upload")
	_, _ = c.App.Writer.Write([]byte(uploaded.ID + "\n"))

	keep := rt.Config.Retention.Keep
	if c.IsSet(keepFlag) {
		keep = c.Int(keepFlag)
	}
	if keep <= 0 {
		return nil
	}
	log.WithField("keep", keep).Info("Cleaning up old files")
	return pruneFolder(c.Context, log, client, folderID, keep)
}

func NewUploadCommand(rt *Runtime) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a file, or a tarball of several paths, and prune old uploads",
		ArgsUsage: "<path> [path...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    folderFlag,
				Aliases: []string{"f"},
				Usage:   "Target folder ID or name; a named folder is created when missing",
			},
			&cli.StringFlag{
				Name:  nameFlag,
				Usage: "Name of the uploaded file",
			},
			&cli.IntFlag{
				Name:  keepFlag,
				Usage: "Files to keep in the folder after the upload, 0 keeps all (default: retention.keep)",
			},
		},
		Action: func(c *cli.Context) error {
			return uploadCommandAction(rt, c)
		},
	}
}
