package remote

import (
	"context"
	"errors"

	"github.com/bioimage-tools/imgxfer/internal/model"
	"github.com/bioimage-tools/imgxfer/internal/reference/objref"
)

// ErrUnimplemented is returned by UnimplementedSession methods.
var ErrUnimplemented = errors.New("not implemented")

// UnimplementedSession satisfies Session with stub methods. Test fakes
// embed it and override only the methods their scenario exercises.
type UnimplementedSession struct{}

var _ Session = (*UnimplementedSession)(nil)

func (UnimplementedSession) ResolveObject(context.Context, objref.Ref) error {
	return ErrUnimplemented
}

func (UnimplementedSession) ObjectName(context.Context, objref.Ref) (string, error) {
	return "", ErrUnimplemented
}

func (UnimplementedSession) ChildRefs(context.Context, objref.Ref) ([]objref.Ref, error) {
	return nil, ErrUnimplemented
}

func (UnimplementedSession) ExportImage(context.Context, int64, string) error {
	return ErrUnimplemented
}

func (UnimplementedSession) DownloadFile(context.Context, ObjectRef, string) error {
	return ErrUnimplemented
}

func (UnimplementedSession) FilesetImageIDs(context.Context, int64) ([]int64, error) {
	return nil, ErrUnimplemented
}

func (UnimplementedSession) FilesetEntries(context.Context, int64) ([]string, error) {
	return nil, ErrUnimplemented
}

func (UnimplementedSession) Import(context.Context, string, ImportOptions) error {
	return ErrUnimplemented
}

func (UnimplementedSession) ImageIDsByClientPath(context.Context, string) ([]int64, error) {
	return nil, ErrUnimplemented
}

func (UnimplementedSession) AnnotationNamespaces(context.Context, int64) ([]string, error) {
	return nil, ErrUnimplemented
}

func (UnimplementedSession) AttachMapAnnotation(context.Context, objref.Ref, string, []model.MapPair) (int64, error) {
	return 0, ErrUnimplemented
}

func (UnimplementedSession) AttachTagAnnotation(context.Context, objref.Ref, string, string) (int64, error) {
	return 0, ErrUnimplemented
}

func (UnimplementedSession) AttachCommentAnnotation(context.Context, objref.Ref, string, string) (int64, error) {
	return 0, ErrUnimplemented
}

func (UnimplementedSession) UploadFileAnnotation(context.Context, objref.Ref, string, string) (int64, error) {
	return 0, ErrUnimplemented
}

func (UnimplementedSession) CreateROI(context.Context, int64, model.ROI) (int64, error) {
	return 0, ErrUnimplemented
}

func (UnimplementedSession) CreateContainer(context.Context, objref.Kind, string) (int64, error) {
	return 0, ErrUnimplemented
}

func (UnimplementedSession) LinkContainer(context.Context, objref.Ref, objref.Ref) error {
	return ErrUnimplemented
}

func (UnimplementedSession) Hostname() string {
	return ""
}

func (UnimplementedSession) ServerVersion() string {
	return ""
}

func (UnimplementedSession) CurrentUser(context.Context) (string, string, error) {
	return "", "", ErrUnimplemented
}

func (UnimplementedSession) DatabaseUUID(context.Context) (string, error) {
	return "", ErrUnimplemented
}

func (UnimplementedSession) Close() error {
	return nil
}
