package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/modelforge/utils"
)

// ErrEmptySource is returned when srcDir does not exist or holds no files.
var ErrEmptySource = errors.New("nothing to archive")

// Zip packs the regular files under srcDir into dst. Entry names are
// slash-separated paths relative to srcDir. dst appears only once complete.
// Returns the archive size.
func Zip(ctx context.Context, srcDir, dst string) (int64, error) {
	logger := log.WithFunc("archive.Zip")

	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("%s: %w", srcDir, ErrEmptySource)
	}

	files := 0
	err = utils.AtomicWriteStream(dst, 0o644, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, flate.BestSpeed)
		})
		walkErr := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(srcDir, p)
			if err != nil {
				return err
			}
			if err := addFile(zw, p, filepath.ToSlash(rel)); err != nil {
				return fmt.Errorf("add %s: %w", rel, err)
			}
			files++
			return nil
		})
		if walkErr != nil {
			_ = zw.Close()
			return walkErr
		}
		if files == 0 {
			_ = zw.Close()
			return fmt.Errorf("%s: %w", srcDir, ErrEmptySource)
		}
		return zw.Close()
	})
	if err != nil {
		return 0, err
	}

	st, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", dst, err)
	}
	logger.Infof(ctx, "packed %d files from %s into %s (%s)", files, srcDir, dst, units.HumanSize(float64(st.Size())))
	return st.Size(), nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path) //nolint:gosec // walked from the artifact dir
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
