// Package shellclient implements the remote session by driving the image
// repository's own command-line client. File transfer goes through the
// client's export/download/import subcommands; lookups go through its HQL
// query subcommand with plain output.
package shellclient

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bioimage-tools/imgxfer/internal/config"
	"github.com/bioimage-tools/imgxfer/internal/model"
	"github.com/bioimage-tools/imgxfer/internal/reference/objref"
	"github.com/bioimage-tools/imgxfer/internal/remote"
)

var logger = slog.With(slog.String("realm", "shellclient"))

// Session drives one repository client process per call. The client CLI
// keeps its own session state, so Close has nothing to release beyond
// logging out.
type Session struct {
	binary string
	host   string
	port   int
	user   string
}

var _ remote.Session = (*Session)(nil)

// Dialer returns a remote.Dialer backed by the configured client binary.
func Dialer(cfg *config.Config) remote.Dialer {
	return func(ctx context.Context) (remote.Session, error) {
		binary := cfg.ClientBinary()
		if _, err := exec.LookPath(binary); err != nil {
			return nil, fmt.Errorf("repository client %q not found: %w", binary, err)
		}
		return &Session{
			binary: binary,
			host:   cfg.Server.Host,
			port:   cfg.Server.Port,
			user:   cfg.Server.User,
		}, nil
	}
}

func (s *Session) connArgs() []string {
	var args []string
	if s.host != "" {
		args = append(args, "-s", s.host)
	}
	if s.port != 0 {
		args = append(args, "-p", strconv.Itoa(s.port))
	}
	if s.user != "" {
		args = append(args, "-u", s.user)
	}
	return args
}

func (s *Session) run(ctx context.Context, args ...string) (string, error) {
	full := append(s.connArgs(), args...)
	logger.DebugContext(ctx, "running client command", "binary", s.binary, "args", args)
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.binary, full...)
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", s.binary, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}

// hql runs a query with plain (comma-separated) output and returns the
// last column of every row.
func (s *Session) hql(ctx context.Context, query string) ([]string, error) {
	out, err := s.run(ctx, "hql", "-q", "--style", "plain", query)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cols := strings.Split(line, ",")
		values = append(values, strings.TrimSpace(cols[len(cols)-1]))
	}
	return values, nil
}

func (s *Session) hqlIDs(ctx context.Context, query string) ([]int64, error) {
	values, err := s.hql(ctx, query)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected query result %q: %w", v, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Session) ResolveObject(ctx context.Context, ref objref.Ref) error {
	if _, err := s.run(ctx, "obj", "get", ref.String()); err != nil {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, ref)
	}
	return nil
}

func (s *Session) ObjectName(ctx context.Context, ref objref.Ref) (string, error) {
	out, err := s.run(ctx, "obj", "get", ref.String(), "name")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s *Session) ChildRefs(ctx context.Context, ref objref.Ref) ([]objref.Ref, error) {
	var query string
	var childKind objref.Kind
	switch ref.Kind {
	case objref.KindProject:
		query = fmt.Sprintf("select l.child.id from ProjectDatasetLink l where l.parent.id = %d", ref.ID)
		childKind = objref.KindDataset
	case objref.KindDataset:
		query = fmt.Sprintf("select l.child.id from DatasetImageLink l where l.parent.id = %d", ref.ID)
		childKind = objref.KindImage
	case objref.KindScreen:
		query = fmt.Sprintf("select l.child.id from ScreenPlateLink l where l.parent.id = %d", ref.ID)
		childKind = objref.KindPlate
	case objref.KindPlate:
		query = fmt.Sprintf("select ws.image.id from WellSample ws where ws.well.plate.id = %d", ref.ID)
		childKind = objref.KindImage
	case objref.KindImage:
		return nil, nil
	default:
		return nil, fmt.Errorf("no children for kind %q", ref.Kind)
	}
	ids, err := s.hqlIDs(ctx, query)
	if err != nil {
		return nil, err
	}
	refs := make([]objref.Ref, len(ids))
	for i, id := range ids {
		refs[i] = objref.Ref{Kind: childKind, ID: id}
	}
	return refs, nil
}

func (s *Session) ExportImage(ctx context.Context, imageID int64, path string) error {
	_, err := s.run(ctx, "export", "--file", path, fmt.Sprintf("Image:%d", imageID))
	return err
}

func (s *Session) DownloadFile(ctx context.Context, ref remote.ObjectRef, dir string) error {
	target := ref.String()
	if ref.Kind == "Annotation" {
		target = fmt.Sprintf("FileAnnotation:%d", ref.ID)
	}
	_, err := s.run(ctx, "download", target, dir)
	return err
}

func (s *Session) FilesetImageIDs(ctx context.Context, imageID int64) ([]int64, error) {
	return s.hqlIDs(ctx, fmt.Sprintf(
		"select i2.id from Image i join i.fileset fs join fs.images i2 where i.id = %d", imageID))
}

func (s *Session) FilesetEntries(ctx context.Context, imageID int64) ([]string, error) {
	return s.hql(ctx, fmt.Sprintf(
		"select u.clientPath from Image i join i.fileset fs join fs.usedFiles u where i.id = %d", imageID))
}

func (s *Session) Import(ctx context.Context, path string, opts remote.ImportOptions) error {
	args := []string{"import", path}
	if opts.InPlace {
		args = append(args, "--transfer=ln_s")
	}
	if opts.Skip != "" {
		args = append(args, "--skip", opts.Skip)
	}
	_, err := s.run(ctx, args...)
	return err
}

func (s *Session) ImageIDsByClientPath(ctx context.Context, prefix string) ([]int64, error) {
	return s.hqlIDs(ctx, fmt.Sprintf(
		"select i.id from Image i join i.fileset fs join fs.usedFiles u where u.clientPath like '%s%%'", prefix))
}

func (s *Session) AnnotationNamespaces(ctx context.Context, imageID int64) ([]string, error) {
	return s.hql(ctx, fmt.Sprintf(
		"select a.ns from Image i join i.annotationLinks l join l.child a where i.id = %d and a.class = MapAnnotation", imageID))
}

// newObject creates an object via `obj new` and parses the "Kind:id"
// reference the client prints.
func (s *Session) newObject(ctx context.Context, args ...string) (int64, error) {
	out, err := s.run(ctx, append([]string{"obj", "new"}, args...)...)
	if err != nil {
		return 0, err
	}
	id, err := model.IDNumber(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected obj new output %q: %w", strings.TrimSpace(out), err)
	}
	return id, nil
}

func (s *Session) link(ctx context.Context, parent objref.Ref, childRef string) error {
	linkType := fmt.Sprintf("%sAnnotationLink", parent.Kind)
	_, err := s.run(ctx, "obj", "new", linkType, "parent="+parent.String(), "child="+childRef)
	return err
}

func (s *Session) AttachMapAnnotation(ctx context.Context, target objref.Ref, namespace string, pairs []model.MapPair) (int64, error) {
	id, err := s.newObject(ctx, "MapAnnotation", "ns="+namespace)
	if err != nil {
		return 0, err
	}
	ref := fmt.Sprintf("MapAnnotation:%d", id)
	for _, p := range pairs {
		if _, err := s.run(ctx, "obj", "map-set", ref, "mapValue", p.Key, p.Value); err != nil {
			return 0, err
		}
	}
	return id, s.link(ctx, target, ref)
}

func (s *Session) AttachTagAnnotation(ctx context.Context, target objref.Ref, namespace, value string) (int64, error) {
	id, err := s.newObject(ctx, "TagAnnotation", "ns="+namespace, "textValue="+value)
	if err != nil {
		return 0, err
	}
	return id, s.link(ctx, target, fmt.Sprintf("TagAnnotation:%d", id))
}

func (s *Session) AttachCommentAnnotation(ctx context.Context, target objref.Ref, namespace, value string) (int64, error) {
	id, err := s.newObject(ctx, "CommentAnnotation", "ns="+namespace, "textValue="+value)
	if err != nil {
		return 0, err
	}
	return id, s.link(ctx, target, fmt.Sprintf("CommentAnnotation:%d", id))
}

func (s *Session) UploadFileAnnotation(ctx context.Context, target objref.Ref, namespace, path string) (int64, error) {
	out, err := s.run(ctx, "upload", path)
	if err != nil {
		return 0, err
	}
	fileID, err := model.IDNumber(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected upload output %q: %w", strings.TrimSpace(out), err)
	}
	id, err := s.newObject(ctx, "FileAnnotation", "ns="+namespace, fmt.Sprintf("file=OriginalFile:%d", fileID))
	if err != nil {
		return 0, err
	}
	return id, s.link(ctx, target, fmt.Sprintf("FileAnnotation:%d", id))
}

func (s *Session) CreateROI(ctx context.Context, imageID int64, roi model.ROI) (int64, error) {
	roiID, err := s.newObject(ctx, "Roi", fmt.Sprintf("image=Image:%d", imageID))
	if err != nil {
		return 0, err
	}
	roiRef := fmt.Sprintf("roi=Roi:%d", roiID)
	for _, p := range roi.Union.Points {
		if _, err := s.newObject(ctx, "Point", roiRef,
			fmt.Sprintf("x=%g", p.X), fmt.Sprintf("y=%g", p.Y)); err != nil {
			return 0, err
		}
	}
	for _, l := range roi.Union.Lines {
		if _, err := s.newObject(ctx, "Line", roiRef,
			fmt.Sprintf("x1=%g", l.X1), fmt.Sprintf("y1=%g", l.Y1),
			fmt.Sprintf("x2=%g", l.X2), fmt.Sprintf("y2=%g", l.Y2)); err != nil {
			return 0, err
		}
	}
	for _, r := range roi.Union.Rectangles {
		if _, err := s.newObject(ctx, "Rectangle", roiRef,
			fmt.Sprintf("x=%g", r.X), fmt.Sprintf("y=%g", r.Y),
			fmt.Sprintf("width=%g", r.Width), fmt.Sprintf("height=%g", r.Height)); err != nil {
			return 0, err
		}
	}
	for _, e := range roi.Union.Ellipses {
		if _, err := s.newObject(ctx, "Ellipse", roiRef,
			fmt.Sprintf("x=%g", e.X), fmt.Sprintf("y=%g", e.Y),
			fmt.Sprintf("radiusX=%g", e.RadiusX), fmt.Sprintf("radiusY=%g", e.RadiusY)); err != nil {
			return 0, err
		}
	}
	for _, p := range roi.Union.Polygons {
		if _, err := s.newObject(ctx, "Polygon", roiRef, "points="+p.Points); err != nil {
			return 0, err
		}
	}
	return roiID, nil
}

func (s *Session) CreateContainer(ctx context.Context, kind objref.Kind, name string) (int64, error) {
	return s.newObject(ctx, string(kind), "name="+name)
}

func (s *Session) LinkContainer(ctx context.Context, parent, child objref.Ref) error {
	linkType := fmt.Sprintf("%s%sLink", parent.Kind, child.Kind)
	_, err := s.run(ctx, "obj", "new", linkType, "parent="+parent.String(), "child="+child.String())
	return err
}

func (s *Session) Hostname() string {
	return s.host
}

// ServerVersion is not exposed through the shell client; the version gate
// accepts the empty string.
func (s *Session) ServerVersion() string {
	return ""
}

func (s *Session) CurrentUser(ctx context.Context) (string, string, error) {
	groups, err := s.hql(ctx, "select g.name from ExperimenterGroup g where g.id = 1")
	if err != nil || len(groups) == 0 {
		logger.DebugContext(ctx, "could not determine session group", "error", err)
		return s.user, "", nil
	}
	return s.user, groups[0], nil
}

func (s *Session) DatabaseUUID(ctx context.Context) (string, error) {
	out, err := s.run(ctx, "config", "get", "omero.db.uuid")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s *Session) Close() error {
	return nil
}
