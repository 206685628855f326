package submissions

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	appErr "autograde/pkg/errors"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// ArchiveFormat names a supported submission archive.
type ArchiveFormat string

const (
	FormatZip    ArchiveFormat = "zip"
	FormatTarZst ArchiveFormat = "tar.zst"
	FormatNone   ArchiveFormat = ""
)

// DetectFormat infers the archive format from a file name.
func DetectFormat(name string) ArchiveFormat {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst
	default:
		return FormatNone
	}
}

// Extract unpacks srcPath into dstDir according to format.
func Extract(format ArchiveFormat, srcPath, dstDir string) error {
	switch format {
	case FormatZip:
		return extractZip(srcPath, dstDir)
	case FormatTarZst:
		return extractTarZst(srcPath, dstDir)
	default:
		return appErr.Newf(appErr.ArchiveInvalid, "unsupported archive format %q", format)
	}
}

func extractZip(srcPath, dstDir string) error {
	r, err := zip.OpenReader(srcPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.ArchiveInvalid, "open zip failed")
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(dstDir, f.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return appErr.Wrapf(err, appErr.ArchiveInvalid, "create dir failed")
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return appErr.Wrapf(err, appErr.ArchiveInvalid, "open zip entry failed")
		}
		err = writeFile(target, rc, f.Mode().Perm())
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarZst(srcPath, dstDir string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.ArchiveInvalid, "open archive failed")
	}
	defer file.Close()

	zstdReader, err := zstd.NewReader(file)
	if err != nil {
		return appErr.Wrapf(err, appErr.ArchiveInvalid, "create zstd reader failed")
	}
	defer zstdReader.Close()

	tr := tar.NewReader(zstdReader)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.ArchiveInvalid, "read tar entry failed")
		}
		target, err := safeJoin(dstDir, hdr.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return appErr.Wrapf(err, appErr.ArchiveInvalid, "create dir failed")
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		default:
			// links and devices are not part of a submission
		}
	}
	return nil
}

// safeJoin resolves name under dir. It returns "" for entries that name dir itself.
func safeJoin(dir, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	cleanName := filepath.Clean(filepath.FromSlash(name))
	if cleanName == "." {
		return "", nil
	}
	if cleanName == ".." || strings.HasPrefix(cleanName, ".."+string(filepath.Separator)) || filepath.IsAbs(cleanName) {
		return "", appErr.Newf(appErr.ArchiveInvalid, "invalid archive entry path %q", name)
	}
	target := filepath.Join(dir, cleanName)
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(filepath.Separator)) {
		return "", appErr.Newf(appErr.ArchiveInvalid, "archive entry escape detected: %q", name)
	}
	return target, nil
}

func writeFile(target string, r io.Reader, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return appErr.Wrapf(err, appErr.ArchiveInvalid, "create parent dir failed")
	}
	if perm == 0 {
		perm = 0644
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return appErr.Wrapf(err, appErr.ArchiveInvalid, "create file failed")
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		return appErr.Wrapf(err, appErr.ArchiveInvalid, "write file failed")
	}
	return file.Close()
}
