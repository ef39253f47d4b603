package commands

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

func addToArchive(log logrus.FieldLogger, tw *tar.Writer, filename string, file io.Reader, info os.FileInfo) error {
	log.WithField("file", filename).Debug("Adding to archive")
	header, err := tar.FileInfoHeader(info, info.Name())
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(filename)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}

func addFileToArchive(log logrus.FieldLogger, tw *tar.Writer, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return addToArchive(log, tw, filename, file, info)
	}

	dirEntries, err := file.ReadDir(-1)
	if err != nil {
		return err
	}
	for _, entry := range dirEntries {
		if err := addFileToArchive(log, tw, filepath.Join(filename, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// createArchive writes a gzipped tarball of the files matched by the given
// names or globs. Directories are added recursively.
func createArchive(log logrus.FieldLogger, files []string, buf io.Writer) error {
	gw := gzip.NewWriter(buf)
	tw := tar.NewWriter(gw)

	for _, filenameOrGlob := range files {
		filenames, err := filepath.Glob(filenameOrGlob)
		if err != nil {
			return err
		}
		if len(filenames) == 0 {
			return errors.New("no files found for " + filenameOrGlob)
		}

		for _, filename := range filenames {
			if err := addFileToArchive(log, tw, filename); err != nil {
				return err
			}
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}
