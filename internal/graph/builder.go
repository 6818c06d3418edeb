// Package graph provides the built-in metadata-model builder and
// object-graph rebuilder. They cover container hierarchies, placeholder
// linking annotations and provenance metadata; richer annotation
// replication can be supplied by swapping in another implementation of
// the collaborator interfaces.
package graph

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/bioimage-tools/imgxfer/internal/model"
	"github.com/bioimage-tools/imgxfer/internal/reference/objref"
	"github.com/bioimage-tools/imgxfer/internal/remote"
	"github.com/bioimage-tools/imgxfer/internal/transfer"
	"github.com/bioimage-tools/imgxfer/internal/version"
)

// Builder is the built-in remote.ModelBuilder.
type Builder struct {
	// Now is the pack timestamp source; defaults to time.Now.
	Now func() time.Time
}

var _ remote.ModelBuilder = (*Builder)(nil)

// build accumulates the document and path map for one pack invocation.
// All state is local to a single Build call.
type build struct {
	ses    remote.Session
	opts   remote.BuildOptions
	now    time.Time
	doc    *model.Document
	paths  map[string][]remote.ObjectRef
	nextID int64
}

// Build walks the selected object graph on the source server and turns
// it into the interchange metadata document plus the path-to-object map
// consumed by the file materializer.
func (b *Builder) Build(ctx context.Context, ses remote.Session, ref objref.Ref, opts remote.BuildOptions) (*model.Document, map[string][]remote.ObjectRef, error) {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	st := &build{
		ses:    ses,
		opts:   opts,
		now:    now().UTC(),
		doc:    &model.Document{},
		paths:  make(map[string][]remote.ObjectRef),
		nextID: -1,
	}
	if err := st.addObject(ctx, ref); err != nil {
		return nil, nil, err
	}
	return st.doc, st.paths, nil
}

// addObject dispatches on the closed set of packable object kinds.
func (st *build) addObject(ctx context.Context, ref objref.Ref) error {
	switch ref.Kind {
	case objref.KindProject:
		return st.addProject(ctx, ref)
	case objref.KindDataset:
		_, err := st.addDataset(ctx, ref)
		return err
	case objref.KindScreen:
		return st.addScreen(ctx, ref)
	case objref.KindPlate:
		_, err := st.addPlate(ctx, ref)
		return err
	case objref.KindImage:
		_, err := st.addImage(ctx, ref)
		return err
	default:
		return fmt.Errorf("cannot pack object of kind %q", ref.Kind)
	}
}

func (st *build) addProject(ctx context.Context, ref objref.Ref) error {
	name, err := st.ses.ObjectName(ctx, ref)
	if err != nil {
		return fmt.Errorf("reading %s: %w", ref, err)
	}
	proj := model.Project{ID: ref.String(), Name: name}
	children, err := st.ses.ChildRefs(ctx, ref)
	if err != nil {
		return fmt.Errorf("listing datasets of %s: %w", ref, err)
	}
	for _, child := range children {
		id, err := st.addDataset(ctx, child)
		if err != nil {
			return err
		}
		proj.DatasetRefs = append(proj.DatasetRefs, model.Ref{ID: id})
	}
	st.doc.Projects = append(st.doc.Projects, proj)
	return nil
}

func (st *build) addDataset(ctx context.Context, ref objref.Ref) (string, error) {
	name, err := st.ses.ObjectName(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", ref, err)
	}
	ds := model.Dataset{ID: ref.String(), Name: name}
	children, err := st.ses.ChildRefs(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("listing images of %s: %w", ref, err)
	}
	for _, child := range children {
		id, err := st.addImage(ctx, child)
		if err != nil {
			return "", err
		}
		ds.ImageRefs = append(ds.ImageRefs, model.Ref{ID: id})
	}
	st.doc.Datasets = append(st.doc.Datasets, ds)
	return ds.ID, nil
}

func (st *build) addScreen(ctx context.Context, ref objref.Ref) error {
	name, err := st.ses.ObjectName(ctx, ref)
	if err != nil {
		return fmt.Errorf("reading %s: %w", ref, err)
	}
	scr := model.Screen{ID: ref.String(), Name: name}
	children, err := st.ses.ChildRefs(ctx, ref)
	if err != nil {
		return fmt.Errorf("listing plates of %s: %w", ref, err)
	}
	for _, child := range children {
		id, err := st.addPlate(ctx, child)
		if err != nil {
			return err
		}
		scr.PlateRefs = append(scr.PlateRefs, model.Ref{ID: id})
	}
	st.doc.Screens = append(st.doc.Screens, scr)
	return nil
}

func (st *build) addPlate(ctx context.Context, ref objref.Ref) (string, error) {
	name, err := st.ses.ObjectName(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", ref, err)
	}
	pl := model.Plate{ID: ref.String(), Name: name}
	children, err := st.ses.ChildRefs(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("listing images of %s: %w", ref, err)
	}
	for _, child := range children {
		id, err := st.addImage(ctx, child)
		if err != nil {
			return "", err
		}
		pl.ImageRefs = append(pl.ImageRefs, model.Ref{ID: id})
	}
	st.doc.Plates = append(st.doc.Plates, pl)
	return pl.ID, nil
}

func (st *build) addImage(ctx context.Context, ref objref.Ref) (string, error) {
	// An image reachable through several containers is added once.
	for _, img := range st.doc.Images {
		if img.ID == ref.String() {
			return img.ID, nil
		}
	}

	name, err := st.ses.ObjectName(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", ref, err)
	}
	img := model.Image{ID: ref.String(), Name: name}

	archivePath, err := st.archivePathFor(ctx, ref.ID)
	if err != nil {
		return "", err
	}
	st.paths[archivePath] = append(st.paths[archivePath], remote.ObjectRef{Kind: "Image", ID: ref.ID})

	placeholder := model.CommentAnnotation{
		ID:        fmt.Sprintf("Annotation:%d", st.nextID),
		Namespace: ref.String(),
		Value:     archivePath,
	}
	st.nextID--
	st.doc.StructuredAnnotations.CommentAnnotations = append(st.doc.StructuredAnnotations.CommentAnnotations, placeholder)
	img.AnnotationRefs = append(img.AnnotationRefs, model.AnnotationRef{ID: placeholder.ID})

	if len(st.opts.Fields) > 0 {
		pairs, err := st.provenancePairs(ctx, ref)
		if err != nil {
			return "", err
		}
		prov := model.MapAnnotation{
			ID:        fmt.Sprintf("Annotation:%d", st.nextID),
			Namespace: transfer.MarkerNamespace,
			Values:    pairs,
		}
		st.nextID--
		st.doc.StructuredAnnotations.MapAnnotations = append(st.doc.StructuredAnnotations.MapAnnotations, prov)
		img.AnnotationRefs = append(img.AnnotationRefs, model.AnnotationRef{ID: prov.ID})
	}

	st.doc.Images = append(st.doc.Images, img)
	return img.ID, nil
}

// archivePathFor derives the archive-relative path an image's files will
// be written to. Images without an accessible file set are exported as a
// single tiff under the pixel-data sentinel folder; multi-file
// acquisitions get a folder path carrying the sentinel suffix so that the
// whole folder is imported as one unit.
func (st *build) archivePathFor(ctx context.Context, imageID int64) (string, error) {
	entries, err := st.ses.FilesetEntries(ctx, imageID)
	if err != nil {
		return "", fmt.Errorf("listing fileset of image %d: %w", imageID, err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("%s/%d.tiff", transfer.PixelImagesDir, imageID), nil
	}
	dir := path.Base(path.Dir(entries[0]))
	if dir == "." || dir == "/" {
		dir = fmt.Sprintf("fileset_%d", imageID)
	}
	if len(entries) > 1 {
		return dir + "/" + transfer.MockFolderSuffix, nil
	}
	return dir + "/" + path.Base(entries[0]), nil
}

func (st *build) provenancePairs(ctx context.Context, ref objref.Ref) ([]model.MapPair, error) {
	pairs := make([]model.MapPair, 0, len(st.opts.Fields))
	for _, field := range st.opts.Fields {
		var value string
		switch transfer.Field(field) {
		case transfer.FieldImgID:
			value = ref.String()
		case transfer.FieldTimestamp:
			value = st.now.Format(time.RFC3339)
		case transfer.FieldSoftware:
			value = "imgxfer"
		case transfer.FieldVersion:
			value = version.Get()
		case transfer.FieldHostname:
			value = st.opts.Hostname
		case transfer.FieldMD5:
			// Substituted with the real packet checksum at unpack.
			value = "TBC"
		case transfer.FieldDBID:
			uuid, err := st.ses.DatabaseUUID(ctx)
			if err != nil {
				return nil, fmt.Errorf("reading database id: %w", err)
			}
			value = uuid
		case transfer.FieldOrigUser:
			user, _, err := st.ses.CurrentUser(ctx)
			if err != nil {
				return nil, fmt.Errorf("reading session user: %w", err)
			}
			value = user
		case transfer.FieldOrigGroup:
			_, group, err := st.ses.CurrentUser(ctx)
			if err != nil {
				return nil, fmt.Errorf("reading session group: %w", err)
			}
			value = group
		default:
			return nil, fmt.Errorf("unknown provenance field %q", field)
		}
		pairs = append(pairs, model.MapPair{Key: field, Value: value})
	}
	return pairs, nil
}

// SubmissionRows derives the compliance manifest: one row per archive
// path, naming the objects behind it.
func (b *Builder) SubmissionRows(ctx context.Context, ses remote.Session, doc *model.Document, paths map[string][]remote.ObjectRef) ([][]string, error) {
	names := make(map[string]string, len(doc.Images))
	for _, img := range doc.Images {
		names[img.ID] = img.Name
	}

	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	rows := [][]string{{"path", "object", "name"}}
	for _, p := range keys {
		for _, ref := range paths[p] {
			rows = append(rows, []string{p, ref.String(), names[ref.String()]})
		}
	}
	return rows, nil
}
