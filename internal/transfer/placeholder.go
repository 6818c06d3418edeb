package transfer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bioimage-tools/imgxfer/internal/model"
)

// PlaceholderResult is the output of ExtractPlaceholders.
type PlaceholderResult struct {
	// Document is the cleaned metadata document, free of placeholder
	// annotations and of references to them.
	Document *model.Document
	// SourceIDs maps each placeholder path, sentinel suffix included,
	// to the ascending list of source image ids it represents.
	SourceIDs map[string][]int64
	// ImportPaths is the de-duplicated list of importable paths, with
	// the sentinel suffix stripped.
	ImportPaths []string
}

// StripMockSuffix removes the trailing sentinel suffix from a placeholder
// path. Stripping an already-stripped path is a no-op.
func StripMockSuffix(path string) string {
	return strings.TrimSuffix(path, MockFolderSuffix)
}

// ExtractPlaceholders scans the metadata document for the synthetic
// negative-id linking annotations created at pack time, strips them out
// and returns the path-to-source-id map and import path list they encode.
// The input document is not modified.
//
// A placeholder is recognized by the triple test: negative identifier,
// comment-type annotation, and a namespace prefixed with "Image".
func ExtractPlaceholders(doc *model.Document) (*PlaceholderResult, error) {
	cleaned, err := doc.Clone()
	if err != nil {
		return nil, err
	}

	sourceIDs := make(map[string][]int64)
	var paths []string
	consumed := make(map[string]struct{})

	kept := cleaned.StructuredAnnotations.CommentAnnotations[:0]
	for _, ann := range cleaned.StructuredAnnotations.CommentAnnotations {
		_, n, err := model.ParseID(ann.ID)
		if err != nil || n >= 0 || !strings.HasPrefix(ann.Namespace, "Image:") {
			kept = append(kept, ann)
			continue
		}
		imageID, err := model.IDNumber(ann.Namespace)
		if err != nil {
			return nil, fmt.Errorf("placeholder %s has malformed namespace %q: %w", ann.ID, ann.Namespace, err)
		}
		sourceIDs[ann.Value] = append(sourceIDs[ann.Value], imageID)
		paths = append(paths, StripMockSuffix(ann.Value))
		consumed[ann.ID] = struct{}{}
	}
	cleaned.StructuredAnnotations.CommentAnnotations = kept

	for i := range cleaned.Images {
		img := &cleaned.Images[i]
		refs := img.AnnotationRefs[:0]
		for _, ref := range img.AnnotationRefs {
			if _, ok := consumed[ref.ID]; !ok {
				refs = append(refs, ref)
			}
		}
		img.AnnotationRefs = refs
	}

	for path := range sourceIDs {
		sort.Slice(sourceIDs[path], func(i, j int) bool { return sourceIDs[path][i] < sourceIDs[path][j] })
	}

	seen := make(map[string]struct{}, len(paths))
	unique := paths[:0]
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	sort.Strings(unique)

	return &PlaceholderResult{
		Document:    cleaned,
		SourceIDs:   sourceIDs,
		ImportPaths: unique,
	}, nil
}
