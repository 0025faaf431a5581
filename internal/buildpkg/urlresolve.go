package buildpkg

import (
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// versionURLIndex is a memoized, sorted view over a Package's explicitly
// URL'd versions, computed lazily on first access and cached for the life
// of the Package (versions never change after construction).
type versionURLIndex struct {
	once   sync.Once
	sorted []versionURL
}

type versionURL struct {
	v   *semver.Version
	url string
}

var urlIndexCache sync.Map // *Package -> *versionURLIndex

func indexFor(p *Package) *versionURLIndex {
	if v, ok := urlIndexCache.Load(p); ok {
		return v.(*versionURLIndex)
	}
	idx := &versionURLIndex{}
	urlIndexCache.Store(p, idx)
	return idx
}

func (idx *versionURLIndex) build(p *Package) {
	idx.once.Do(func() {
		for vs, meta := range p.Versions {
			if meta.URL == "" {
				continue
			}
			v, err := semver.NewVersion(vs)
			if err != nil {
				continue
			}
			idx.sorted = append(idx.sorted, versionURL{v: v, url: meta.URL})
		}
		sort.Slice(idx.sorted, func(i, j int) bool { return idx.sorted[i].v.LessThan(idx.sorted[j].v) })
	})
}

// ResolveURL picks the download URL for a requested version per the
// nearest-defined-version rule:
//  1. exact match in the version table's explicit URL,
//  2. else the nearest lower version with an explicit URL,
//  3. else the package-level default URL,
//  4. else the next higher version with an explicit URL,
//  5. else NoURLError.
//
// For versions without an explicit per-version URL, the resolved template
// (from the nearest neighbor or the default) has its version token
// substituted via p.UrlVersion(requested).
func ResolveURL(p *Package, requested *semver.Version) (string, error) {
	if meta, ok := p.Versions[requested.Original()]; ok && meta.URL != "" {
		return meta.URL, nil
	}

	idx := indexFor(p)
	idx.build(p)

	var nearestLower *versionURL
	var nearestHigher *versionURL
	for i := range idx.sorted {
		vu := &idx.sorted[i]
		if vu.v.Equal(requested) {
			return extrapolate(vu.url, vu.v, p, requested), nil
		}
		if vu.v.LessThan(requested) {
			if nearestLower == nil || vu.v.GreaterThan(nearestLower.v) {
				nearestLower = vu
			}
		} else {
			if nearestHigher == nil || vu.v.LessThan(nearestHigher.v) {
				nearestHigher = vu
			}
		}
	}

	if nearestLower != nil {
		return extrapolate(nearestLower.url, nearestLower.v, p, requested), nil
	}
	if p.DefaultURL != "" {
		return extrapolate(p.DefaultURL, nil, p, requested), nil
	}
	if nearestHigher != nil {
		return extrapolate(nearestHigher.url, nearestHigher.v, p, requested), nil
	}
	return "", &NoURLError{Package: p.Name, Version: requested.Original()}
}

// extrapolate substitutes the version token in a URL template with the
// requested version's formatted token. When the template came from a
// neighboring version's explicit URL, the neighbor's own token is replaced
// everywhere it appears; when it came from the package's version-agnostic
// default URL template, the literal placeholder "{version}" is replaced
// instead.
func extrapolate(template string, from *semver.Version, p *Package, requested *semver.Version) string {
	to := p.UrlVersion(requested)
	if from == nil {
		return strings.ReplaceAll(template, "{version}", to)
	}
	fromToken := p.UrlVersion(from)
	if strings.Contains(template, fromToken) {
		return strings.ReplaceAll(template, fromToken, to)
	}
	return strings.ReplaceAll(template, "{version}", to)
}
