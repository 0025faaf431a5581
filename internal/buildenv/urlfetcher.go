package buildenv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/tsukumogami/tsuku/internal/buildpkg"
)

// URLFetcher retrieves a root archive or resource over http(s) or from a
// local file:// URL, verifying its checksum when one is known. Grounded on
// this codebase's checksum-verified download idiom
// (internal/install/checksum.go, internal/executor's
// executeDownloadWithVerification).
type URLFetcher struct {
	url      string
	checksum string
	client   *http.Client
}

// NewURLFetcher builds a URLFetcher for url, verifying downloads against
// checksum (sha256 hex) when non-empty.
func NewURLFetcher(url, checksum string) *URLFetcher {
	return &URLFetcher{
		url:      url,
		checksum: checksum,
		client: &http.Client{
			Timeout: 10 * time.Minute,
			Transport: &http.Transport{
				DisableCompression: true, // anti decompression-bomb hardening
			},
		},
	}
}

func (f *URLFetcher) URL() string { return f.url }

// Fetch downloads the artifact into destDir, naming the file after the
// URL's final path segment. When mirrorOnly is true and the URL is not a
// file:// URL, Fetch refuses to reach the network and returns a
// FetchError instead (mirror-only fetch means "cache hit or fail").
func (f *URLFetcher) Fetch(ctx context.Context, destDir string, mirrorOnly bool) (string, error) {
	name := f.url
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	dest := filepath.Join(destDir, name)

	if strings.HasPrefix(f.url, "file://") {
		src := strings.TrimPrefix(f.url, "file://")
		if err := copyFile(src, dest); err != nil {
			return "", &buildpkg.FetchError{URL: f.url, Reason: err.Error(), Err: err}
		}
		return dest, f.verify(dest)
	}

	if mirrorOnly {
		if _, err := os.Stat(dest); err == nil {
			return dest, f.verify(dest)
		}
		return "", &buildpkg.FetchError{URL: f.url, Reason: "mirror-only fetch requested but artifact is not cached"}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", &buildpkg.FetchError{URL: f.url, Reason: err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", &buildpkg.FetchError{URL: f.url, Reason: err.Error(), Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", &buildpkg.FetchError{URL: f.url, Reason: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &buildpkg.FetchError{URL: f.url, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", &buildpkg.FetchError{URL: f.url, Reason: err.Error(), Err: err}
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", &buildpkg.FetchError{URL: f.url, Reason: err.Error(), Err: err}
	}

	return dest, f.verify(dest)
}

func (f *URLFetcher) verify(path string) error {
	if f.checksum == "" {
		return nil
	}
	actual, err := computeSHA256(path)
	if err != nil {
		return &buildpkg.FetchError{URL: f.url, Reason: "checksum: " + err.Error(), Err: err}
	}
	if actual != f.checksum {
		return &buildpkg.FetchError{URL: f.url, Reason: fmt.Sprintf("checksum mismatch: expected %s, got %s", f.checksum, actual)}
	}
	return nil
}

func computeSHA256(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// FetchFactory produces URLFetcher/GitFetcher instances for a package's
// version metadata and resource descriptors, resolving extrapolated URLs
// via buildpkg.ResolveURL when a version has no explicit URL of its own.
type FetchFactory struct{}

func (FetchFactory) ForPackageVersion(pkg *buildpkg.Package, version string) (buildpkg.Fetcher, error) {
	meta, ok := pkg.Versions[version]
	if !ok {
		return nil, &buildpkg.VersionFetchError{Package: pkg.Name, Version: version, Reason: "no such version declared"}
	}
	if meta.Fetch != nil && meta.Fetch.Scheme == "git" {
		return NewGitFetcher(meta.Fetch.Target), nil
	}
	url := meta.URL
	if url == "" {
		requested, err := semver.NewVersion(version)
		if err != nil {
			return nil, &buildpkg.VersionFetchError{Package: pkg.Name, Version: version, Reason: "invalid version: " + err.Error()}
		}
		resolved, err := buildpkg.ResolveURL(pkg, requested)
		if err != nil {
			return nil, err
		}
		url = resolved
	}
	return NewURLFetcher(url, meta.Checksum), nil
}

func (FetchFactory) ForResource(r buildpkg.ResourceDescriptor) (buildpkg.Fetcher, error) {
	if r.Fetch.Scheme == "git" {
		return NewGitFetcher(r.Fetch.Target), nil
	}
	return NewURLFetcher(r.Fetch.Target, ""), nil
}

func (FetchFactory) IsURLFetcher(f buildpkg.Fetcher) bool {
	_, ok := f.(*URLFetcher)
	return ok
}
