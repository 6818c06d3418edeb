package transfer

import (
	"fmt"
	"sort"
	"strings"
)

// Pairing records the reconciliation outcome for one normalized path.
type Pairing struct {
	Path   string
	Source []int64
	Dest   []int64
	// Paired is false when the path was present on only one side or
	// the id counts differ; no identifiers are emitted for such paths.
	Paired bool
}

// normalizeDestPath reduces an absolute import path to its remainder
// after the last relative-root marker. Paths without the marker are
// returned unchanged.
func normalizeDestPath(path string) string {
	if idx := strings.LastIndex(path, clientPathRootMarker); idx != -1 {
		return path[idx+len(clientPathRootMarker):]
	}
	return path
}

// ReconcilePairings groups both id maps by normalized path and pairs the
// id lists positionally after sorting. Source keys are normalized by
// stripping the sentinel suffix, destination keys by cutting at the
// relative-root marker. Lists of unequal length are never paired; this
// silent skip is a documented behavioral contract.
func ReconcilePairings(source, dest map[string][]int64) []Pairing {
	srcByPath := groupSorted(source, StripMockSuffix)
	destByPath := groupSorted(dest, normalizeDestPath)

	paths := make([]string, 0, len(srcByPath))
	for path := range srcByPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	pairings := make([]Pairing, 0, len(paths))
	for _, path := range paths {
		srcIDs := srcByPath[path]
		destIDs, ok := destByPath[path]
		pairings = append(pairings, Pairing{
			Path:   path,
			Source: srcIDs,
			Dest:   destIDs,
			Paired: ok && len(srcIDs) == len(destIDs),
		})
	}
	return pairings
}

// ReconcileIdentities pairs source and destination image ids per
// normalized path, i-th smallest source id to i-th smallest destination
// id, and returns the "Image:<source-id>" to destination-id mapping.
func ReconcileIdentities(source, dest map[string][]int64) map[string]int64 {
	imageMap := make(map[string]int64)
	for _, p := range ReconcilePairings(source, dest) {
		if !p.Paired {
			continue
		}
		for i, srcID := range p.Source {
			imageMap[fmt.Sprintf("Image:%d", srcID)] = p.Dest[i]
		}
	}
	return imageMap
}

func groupSorted(in map[string][]int64, normalize func(string) string) map[string][]int64 {
	out := make(map[string][]int64, len(in))
	for key, ids := range in {
		norm := normalize(key)
		out[norm] = append(out[norm], ids...)
	}
	for key := range out {
		sort.Slice(out[key], func(i, j int) bool { return out[key][i] < out[key][j] })
	}
	return out
}
