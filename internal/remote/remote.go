// Package remote defines the boundary to the image-repository server and
// to the two metadata collaborators (model builder and graph rebuilder).
// The transfer engine only ever talks to these interfaces; concrete
// implementations wrap the server's client tooling and are injected at
// command entry.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/bioimage-tools/imgxfer/internal/model"
	"github.com/bioimage-tools/imgxfer/internal/reference/objref"
)

// ErrNotFound is returned when an object does not exist on the server or
// is outside the current user's permissions.
var ErrNotFound = errors.New("object not found or outside current permissions")

// ObjectRef names one downloadable object behind an archive path. Kind is
// either "Image" or "Annotation".
type ObjectRef struct {
	Kind string
	ID   int64
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// ImportOptions carries the per-path options forwarded to the server's
// import machinery.
type ImportOptions struct {
	// InPlace requests an in-place (symlink, no-copy) import.
	InPlace bool
	// Skip names one import stage to skip (all, checksum, thumbnails,
	// minmax, upgrade). Empty means skip nothing.
	Skip string
}

// Resolver looks objects up on the server.
type Resolver interface {
	// ResolveObject checks that the referenced object exists and is
	// accessible. Returns an error wrapping ErrNotFound otherwise.
	ResolveObject(ctx context.Context, ref objref.Ref) error
	// ObjectName returns the display name of the referenced object.
	ObjectName(ctx context.Context, ref objref.Ref) (string, error)
	// ChildRefs lists the direct children of a container: datasets of
	// a project, images of a dataset or plate, plates of a screen.
	// Images have no children.
	ChildRefs(ctx context.Context, ref objref.Ref) ([]objref.Ref, error)
}

// FileServices moves files between the server and the local filesystem.
type FileServices interface {
	// ExportImage writes the pixel data of one image to path as a
	// single file.
	ExportImage(ctx context.Context, imageID int64, path string) error
	// DownloadFile downloads the files backing the referenced object
	// into dir.
	DownloadFile(ctx context.Context, ref ObjectRef, dir string) error
	// FilesetImageIDs lists every image sharing the acquisition file
	// set of the given image, the image itself included.
	FilesetImageIDs(ctx context.Context, imageID int64) ([]int64, error)
	// FilesetEntries lists the client-side relative paths of the files
	// backing the given image. Empty for images without an accessible
	// file set.
	FilesetEntries(ctx context.Context, imageID int64) ([]string, error)
	// Import runs a blocking file import for path. It returns only
	// after the server has fully registered the imported files.
	Import(ctx context.Context, path string, opts ImportOptions) error
	// ImageIDsByClientPath lists the ids of images whose backing
	// file's recorded client-side path starts with the given prefix.
	ImageIDsByClientPath(ctx context.Context, prefix string) ([]int64, error)
}

// Annotator reads and writes annotations and ROIs.
type Annotator interface {
	// AnnotationNamespaces lists the namespaces of every map
	// annotation attached to the given image.
	AnnotationNamespaces(ctx context.Context, imageID int64) ([]string, error)
	// AttachMapAnnotation attaches a key/value annotation to target.
	AttachMapAnnotation(ctx context.Context, target objref.Ref, namespace string, pairs []model.MapPair) (int64, error)
	// AttachTagAnnotation attaches a tag to target.
	AttachTagAnnotation(ctx context.Context, target objref.Ref, namespace, value string) (int64, error)
	// AttachCommentAnnotation attaches a free-text comment to target.
	AttachCommentAnnotation(ctx context.Context, target objref.Ref, namespace, value string) (int64, error)
	// UploadFileAnnotation uploads a local file and attaches it to
	// target.
	UploadFileAnnotation(ctx context.Context, target objref.Ref, namespace, path string) (int64, error)
	// CreateROI creates a region of interest on the given image.
	CreateROI(ctx context.Context, imageID int64, roi model.ROI) (int64, error)
}

// GraphWriter creates and links container objects.
type GraphWriter interface {
	// CreateContainer creates an empty container of the given kind.
	CreateContainer(ctx context.Context, kind objref.Kind, name string) (int64, error)
	// LinkContainer links child into parent.
	LinkContainer(ctx context.Context, parent, child objref.Ref) error
}

// Identity reports who and what the session is connected to.
type Identity interface {
	// Hostname reports the server host the session is connected to.
	Hostname() string
	// ServerVersion reports the server's version string, or "" if the
	// server does not expose one.
	ServerVersion() string
	// CurrentUser reports the session's user and group names.
	CurrentUser(ctx context.Context) (user, group string, err error)
	// DatabaseUUID reports the server's database identifier.
	DatabaseUUID(ctx context.Context) (string, error)
}

// Session is an open connection to one image-repository server. A Session
// is exclusively owned by a single pack or unpack invocation and must be
// closed on every exit path; use WithSession for that.
type Session interface {
	Resolver
	FileServices
	Annotator
	GraphWriter
	Identity
	Close() error
}

// Dialer opens a Session.
type Dialer func(ctx context.Context) (Session, error)

// minServerVersion is the oldest server release whose import machinery
// records client paths the way the reconciliation engine requires.
var minServerVersion = semver.MustParse("5.6.0")

// CheckServerVersion verifies that the reported server version is
// supported. An empty version is accepted; some deployments hide it.
func CheckServerVersion(version string) error {
	if version == "" {
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("unparseable server version %q: %w", version, err)
	}
	if v.LessThan(minServerVersion) {
		return fmt.Errorf("server version %s is older than the minimum supported %s", v, minServerVersion)
	}
	return nil
}

// WithSession dials a session, verifies server compatibility, runs fn
// with the live session and closes it on every exit path. The close error
// is joined with fn's error.
func WithSession(ctx context.Context, dial Dialer, fn func(ctx context.Context, ses Session) error) (err error) {
	ses, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("opening repository session: %w", err)
	}
	defer func() {
		err = errors.Join(err, ses.Close())
	}()
	if err := CheckServerVersion(ses.ServerVersion()); err != nil {
		return err
	}
	return fn(ctx, ses)
}

// BuildOptions parameterizes metadata-model building at pack time.
type BuildOptions struct {
	// Hostname is recorded as the provenance host of the pack.
	Hostname string
	// Compliance selects the archival-compliance model variant.
	Compliance bool
	// Fields are the resolved provenance field names to attach.
	Fields []string
}

// ModelBuilder converts a live source object graph into the interchange
// metadata document plus the path-to-object map the materializer needs.
type ModelBuilder interface {
	Build(ctx context.Context, ses Session, ref objref.Ref, opts BuildOptions) (*model.Document, map[string][]ObjectRef, error)
	// SubmissionRows derives the rows of the compliance-mode
	// submission manifest from a built document. The first row is the
	// header.
	SubmissionRows(ctx context.Context, ses Session, doc *model.Document, paths map[string][]ObjectRef) ([][]string, error)
}

// PopulateOptions parameterizes graph rebuilding at unpack time.
type PopulateOptions struct {
	// PacketChecksum is the checksum of the unpacked packet, or the
	// "not computed" marker in folder mode.
	PacketChecksum string
	// Folder is the extracted working folder.
	Folder string
	// Fields are the resolved provenance field names to honor.
	Fields []string
}

// GraphRebuilder creates and links destination containers, annotations
// and ROIs from the cleaned metadata document, resolving every image
// reference through imageMap ("Image:<source-id>" to destination id).
type GraphRebuilder interface {
	Populate(ctx context.Context, ses Session, doc *model.Document, imageMap map[string]int64, opts PopulateOptions) error
}
