package graph

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bioimage-tools/imgxfer/internal/model"
	"github.com/bioimage-tools/imgxfer/internal/reference/objref"
	"github.com/bioimage-tools/imgxfer/internal/remote"
	"github.com/bioimage-tools/imgxfer/internal/transfer"
)

// Rebuilder is the built-in remote.GraphRebuilder.
type Rebuilder struct{}

var _ remote.GraphRebuilder = (*Rebuilder)(nil)

// populate carries the per-invocation lookup state of one Populate call.
type populate struct {
	ses      remote.Session
	doc      *model.Document
	imageMap map[string]int64
	opts     remote.PopulateOptions
	// created maps document container ids to destination ids.
	created map[string]objref.Ref
	fields  map[string]struct{}
	rois    map[string]model.ROI
}

// Populate recreates containers, links, annotations and ROIs on the
// destination server, resolving every image reference through imageMap.
// Images the reconciliation engine could not pair are skipped, together
// with everything that only referenced them.
func (r *Rebuilder) Populate(ctx context.Context, ses remote.Session, doc *model.Document, imageMap map[string]int64, opts remote.PopulateOptions) error {
	if dangling := doc.DanglingAnnotationRefs(); len(dangling) > 0 {
		return fmt.Errorf("document has %d dangling annotation references, first %s", len(dangling), dangling[0])
	}

	st := &populate{
		ses:      ses,
		doc:      doc,
		imageMap: imageMap,
		opts:     opts,
		created:  make(map[string]objref.Ref),
		fields:   make(map[string]struct{}, len(opts.Fields)),
		rois:     make(map[string]model.ROI, len(doc.ROIs)),
	}
	for _, f := range opts.Fields {
		st.fields[f] = struct{}{}
	}
	for _, roi := range doc.ROIs {
		st.rois[roi.ID] = roi
	}

	if err := st.createContainers(ctx); err != nil {
		return err
	}
	if err := st.replayAnnotations(ctx); err != nil {
		return err
	}
	return st.replayROIs(ctx)
}

func (st *populate) createContainers(ctx context.Context) error {
	for _, ds := range st.doc.Datasets {
		ref, err := st.create(ctx, objref.KindDataset, ds.ID, ds.Name)
		if err != nil {
			return err
		}
		if err := st.linkImages(ctx, ref, ds.ImageRefs); err != nil {
			return err
		}
	}
	for _, proj := range st.doc.Projects {
		ref, err := st.create(ctx, objref.KindProject, proj.ID, proj.Name)
		if err != nil {
			return err
		}
		for _, dsRef := range proj.DatasetRefs {
			child, ok := st.created[dsRef.ID]
			if !ok {
				return fmt.Errorf("project %s references unknown dataset %s", proj.ID, dsRef.ID)
			}
			if err := st.ses.LinkContainer(ctx, ref, child); err != nil {
				return fmt.Errorf("linking %s into %s: %w", child, ref, err)
			}
		}
	}
	for _, pl := range st.doc.Plates {
		ref, err := st.create(ctx, objref.KindPlate, pl.ID, pl.Name)
		if err != nil {
			return err
		}
		if err := st.linkImages(ctx, ref, pl.ImageRefs); err != nil {
			return err
		}
	}
	for _, scr := range st.doc.Screens {
		ref, err := st.create(ctx, objref.KindScreen, scr.ID, scr.Name)
		if err != nil {
			return err
		}
		for _, plRef := range scr.PlateRefs {
			child, ok := st.created[plRef.ID]
			if !ok {
				return fmt.Errorf("screen %s references unknown plate %s", scr.ID, plRef.ID)
			}
			if err := st.ses.LinkContainer(ctx, ref, child); err != nil {
				return fmt.Errorf("linking %s into %s: %w", child, ref, err)
			}
		}
	}
	return nil
}

func (st *populate) create(ctx context.Context, kind objref.Kind, docID, name string) (objref.Ref, error) {
	id, err := st.ses.CreateContainer(ctx, kind, name)
	if err != nil {
		return objref.Ref{}, fmt.Errorf("creating %s %q: %w", kind, name, err)
	}
	ref := objref.Ref{Kind: kind, ID: id}
	st.created[docID] = ref
	return ref, nil
}

func (st *populate) linkImages(ctx context.Context, parent objref.Ref, refs []model.Ref) error {
	for _, imgRef := range refs {
		destID, ok := st.imageMap[imgRef.ID]
		if !ok {
			continue
		}
		child := objref.Ref{Kind: objref.KindImage, ID: destID}
		if err := st.ses.LinkContainer(ctx, parent, child); err != nil {
			return fmt.Errorf("linking %s into %s: %w", child, parent, err)
		}
	}
	return nil
}

// destTarget resolves a document entity id to its destination object, if
// it exists there.
func (st *populate) destTarget(docID string) (objref.Ref, bool) {
	if ref, ok := st.created[docID]; ok {
		return ref, true
	}
	if id, ok := st.imageMap[docID]; ok {
		return objref.Ref{Kind: objref.KindImage, ID: id}, true
	}
	return objref.Ref{}, false
}

func (st *populate) replayAnnotations(ctx context.Context) error {
	maps := make(map[string]model.MapAnnotation)
	for _, a := range st.doc.StructuredAnnotations.MapAnnotations {
		maps[a.ID] = a
	}
	tags := make(map[string]model.TagAnnotation)
	for _, a := range st.doc.StructuredAnnotations.TagAnnotations {
		tags[a.ID] = a
	}
	comments := make(map[string]model.CommentAnnotation)
	for _, a := range st.doc.StructuredAnnotations.CommentAnnotations {
		comments[a.ID] = a
	}
	files := make(map[string]model.FileAnnotation)
	for _, a := range st.doc.StructuredAnnotations.FileAnnotations {
		files[a.ID] = a
	}

	replay := func(docID string, refs []model.AnnotationRef) error {
		target, ok := st.destTarget(docID)
		if !ok {
			return nil
		}
		marked := false
		for _, ref := range refs {
			switch {
			case maps[ref.ID].ID != "":
				a := maps[ref.ID]
				pairs := a.Values
				if a.Namespace == transfer.MarkerNamespace {
					pairs = st.provenancePairs(pairs)
					marked = true
				}
				if _, err := st.ses.AttachMapAnnotation(ctx, target, a.Namespace, pairs); err != nil {
					return fmt.Errorf("attaching map annotation to %s: %w", target, err)
				}
			case tags[ref.ID].ID != "":
				a := tags[ref.ID]
				if _, err := st.ses.AttachTagAnnotation(ctx, target, a.Namespace, a.Value); err != nil {
					return fmt.Errorf("attaching tag to %s: %w", target, err)
				}
			case comments[ref.ID].ID != "":
				a := comments[ref.ID]
				if _, err := st.ses.AttachCommentAnnotation(ctx, target, a.Namespace, a.Value); err != nil {
					return fmt.Errorf("attaching comment to %s: %w", target, err)
				}
			case files[ref.ID].ID != "":
				a := files[ref.ID]
				local := filepath.Join(st.opts.Folder, filepath.FromSlash(a.FileName))
				if _, err := st.ses.UploadFileAnnotation(ctx, target, a.Namespace, local); err != nil {
					return fmt.Errorf("attaching file annotation to %s: %w", target, err)
				}
			}
		}
		// Every rebuilt image carries the completion marker, even when
		// no provenance fields were packed: the marker is what makes a
		// re-run of unpack idempotent.
		if target.Kind == objref.KindImage && !marked {
			if _, err := st.ses.AttachMapAnnotation(ctx, target, transfer.MarkerNamespace, st.provenancePairs(nil)); err != nil {
				return fmt.Errorf("marking %s: %w", target, err)
			}
		}
		return nil
	}

	for _, p := range st.doc.Projects {
		if err := replay(p.ID, p.AnnotationRefs); err != nil {
			return err
		}
	}
	for _, ds := range st.doc.Datasets {
		if err := replay(ds.ID, ds.AnnotationRefs); err != nil {
			return err
		}
	}
	for _, scr := range st.doc.Screens {
		if err := replay(scr.ID, scr.AnnotationRefs); err != nil {
			return err
		}
	}
	for _, pl := range st.doc.Plates {
		if err := replay(pl.ID, pl.AnnotationRefs); err != nil {
			return err
		}
	}
	for _, img := range st.doc.Images {
		if err := replay(img.ID, img.AnnotationRefs); err != nil {
			return err
		}
	}
	return nil
}

// provenancePairs filters packed provenance pairs down to the selected
// field set and substitutes the pack-time checksum placeholder with the
// actual packet checksum.
func (st *populate) provenancePairs(packed []model.MapPair) []model.MapPair {
	pairs := make([]model.MapPair, 0, len(packed))
	for _, p := range packed {
		if _, ok := st.fields[p.Key]; !ok {
			continue
		}
		if p.Key == string(transfer.FieldMD5) {
			p.Value = st.opts.PacketChecksum
		}
		pairs = append(pairs, p)
	}
	return pairs
}

func (st *populate) replayROIs(ctx context.Context) error {
	for _, img := range st.doc.Images {
		destID, ok := st.imageMap[img.ID]
		if !ok {
			continue
		}
		for _, roiRef := range img.ROIRefs {
			roi, ok := st.rois[roiRef.ID]
			if !ok {
				return fmt.Errorf("image %s references unknown ROI %s", img.ID, roiRef.ID)
			}
			if _, err := st.ses.CreateROI(ctx, destID, roi); err != nil {
				return fmt.Errorf("creating ROI on Image:%d: %w", destID, err)
			}
		}
	}
	return nil
}
