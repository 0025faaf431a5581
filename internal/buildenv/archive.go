package buildenv

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

// ExpandArchive expands archivePath into destDir, dispatching on file
// extension, and returns the root directory of the expanded tree. It
// satisfies the function shape buildpkg.Stage.ExpandArchive expects.
func ExpandArchive(archivePath, destDir string) (string, error) {
	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		return expandTarGz(archivePath, destDir)
	case strings.HasSuffix(lower, ".tar.xz") || strings.HasSuffix(lower, ".txz"):
		return expandTarXz(archivePath, destDir)
	case strings.HasSuffix(lower, ".tar.lz"):
		return expandTarLzip(archivePath, destDir)
	case strings.HasSuffix(lower, ".zip"):
		return expandZip(archivePath, destDir)
	case strings.HasSuffix(lower, ".tar"):
		f, err := os.Open(archivePath)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return extractTar(f, destDir)
	default:
		return "", fmt.Errorf("unsupported archive extension: %s", archivePath)
	}
}

func expandTarGz(archivePath, destDir string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", err
	}
	defer gz.Close()
	return extractTar(gz, destDir)
}

func expandTarXz(archivePath, destDir string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	xr, err := xz.NewReader(f)
	if err != nil {
		return "", err
	}
	return extractTar(xr, destDir)
}

func expandTarLzip(archivePath, destDir string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	lr, err := lzip.NewReader(f)
	if err != nil {
		return "", err
	}
	return extractTar(lr, destDir)
}

// extractTar unpacks a tar stream into destDir/src and returns that path.
// The single top-level directory convention (common for source tarballs)
// is not assumed: every entry is written under destDir/src verbatim.
func extractTar(r io.Reader, destDir string) (string, error) {
	root := filepath.Join(destDir, "src")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		target := filepath.Join(root, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(root)+string(os.PathSeparator)) && target != root {
			return "", fmt.Errorf("tar entry escapes destination: %s", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return "", err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return "", err
			}
			out.Close()
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", err
			}
			_ = os.Symlink(hdr.Linkname, target)
		}
	}
	return root, nil
}

func expandZip(archivePath, destDir string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	root := filepath.Join(destDir, "src")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	for _, f := range r.File {
		target := filepath.Join(root, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(root)+string(os.PathSeparator)) && target != root {
			return "", fmt.Errorf("zip entry escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", err
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
		if err != nil {
			rc.Close()
			return "", err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return "", copyErr
		}
	}
	return root, nil
}
