// Package model defines the interchange metadata document shipped inside a
// transfer packet as transfer.xml. The document carries the container
// hierarchy, its annotations and ROIs, with every entity addressed by a
// "Type:n" identifier that is unique within the document.
package model

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// DocumentFileName is the name of the metadata document at the packet root.
const DocumentFileName = "transfer.xml"

// Document is the root of the interchange metadata document.
type Document struct {
	XMLName               xml.Name              `xml:"OME"`
	Projects              []Project             `xml:"Project"`
	Datasets              []Dataset             `xml:"Dataset"`
	Screens               []Screen              `xml:"Screen"`
	Plates                []Plate               `xml:"Plate"`
	Images                []Image               `xml:"Image"`
	StructuredAnnotations StructuredAnnotations `xml:"StructuredAnnotations"`
	ROIs                  []ROI                 `xml:"ROI"`
}

type Project struct {
	ID             string          `xml:"ID,attr"`
	Name           string          `xml:"Name,attr,omitempty"`
	Description    string          `xml:"Description,omitempty"`
	DatasetRefs    []Ref           `xml:"DatasetRef"`
	AnnotationRefs []AnnotationRef `xml:"AnnotationRef"`
}

type Dataset struct {
	ID             string          `xml:"ID,attr"`
	Name           string          `xml:"Name,attr,omitempty"`
	Description    string          `xml:"Description,omitempty"`
	ImageRefs      []Ref           `xml:"ImageRef"`
	AnnotationRefs []AnnotationRef `xml:"AnnotationRef"`
}

type Screen struct {
	ID             string          `xml:"ID,attr"`
	Name           string          `xml:"Name,attr,omitempty"`
	PlateRefs      []Ref           `xml:"PlateRef"`
	AnnotationRefs []AnnotationRef `xml:"AnnotationRef"`
}

type Plate struct {
	ID             string          `xml:"ID,attr"`
	Name           string          `xml:"Name,attr,omitempty"`
	ImageRefs      []Ref           `xml:"ImageRef"`
	AnnotationRefs []AnnotationRef `xml:"AnnotationRef"`
}

type Image struct {
	ID             string          `xml:"ID,attr"`
	Name           string          `xml:"Name,attr,omitempty"`
	AnnotationRefs []AnnotationRef `xml:"AnnotationRef"`
	ROIRefs        []Ref           `xml:"ROIRef"`
}

// Ref is a cross-reference to another entity in the same document.
type Ref struct {
	ID string `xml:"ID,attr"`
}

// AnnotationRef links an entity to an annotation by identifier.
type AnnotationRef struct {
	ID string `xml:"ID,attr"`
}

// StructuredAnnotations is the flat collection of annotation entities.
type StructuredAnnotations struct {
	MapAnnotations     []MapAnnotation     `xml:"MapAnnotation"`
	TagAnnotations     []TagAnnotation     `xml:"TagAnnotation"`
	FileAnnotations    []FileAnnotation    `xml:"FileAnnotation"`
	CommentAnnotations []CommentAnnotation `xml:"CommentAnnotation"`
}

// Len returns the total number of annotations in the collection.
func (sa *StructuredAnnotations) Len() int {
	return len(sa.MapAnnotations) + len(sa.TagAnnotations) + len(sa.FileAnnotations) + len(sa.CommentAnnotations)
}

type MapAnnotation struct {
	ID        string    `xml:"ID,attr"`
	Namespace string    `xml:"Namespace,attr,omitempty"`
	Values    []MapPair `xml:"Value>M"`
}

// MapPair is one key/value entry of a MapAnnotation.
type MapPair struct {
	Key   string `xml:"K,attr"`
	Value string `xml:",chardata"`
}

type TagAnnotation struct {
	ID        string `xml:"ID,attr"`
	Namespace string `xml:"Namespace,attr,omitempty"`
	Value     string `xml:"Value"`
}

type FileAnnotation struct {
	ID        string `xml:"ID,attr"`
	Namespace string `xml:"Namespace,attr,omitempty"`
	// FileName is the archive-relative path of the attached file.
	FileName string `xml:"BinaryFile>FileName"`
}

type CommentAnnotation struct {
	ID        string `xml:"ID,attr"`
	Namespace string `xml:"Namespace,attr,omitempty"`
	Value     string `xml:"Value"`
}

// ROI is a region of interest attached to an image via the image's ROIRef
// list. The shape union carries the five shape kinds packaged for transfer.
type ROI struct {
	ID    string `xml:"ID,attr"`
	Name  string `xml:"Name,attr,omitempty"`
	Union Union  `xml:"Union"`
}

type Union struct {
	Points     []Point     `xml:"Point"`
	Lines      []Line      `xml:"Line"`
	Rectangles []Rectangle `xml:"Rectangle"`
	Ellipses   []Ellipse   `xml:"Ellipse"`
	Polygons   []Polygon   `xml:"Polygon"`
}

type Point struct {
	ID string  `xml:"ID,attr"`
	X  float64 `xml:"X,attr"`
	Y  float64 `xml:"Y,attr"`
}

type Line struct {
	ID string  `xml:"ID,attr"`
	X1 float64 `xml:"X1,attr"`
	Y1 float64 `xml:"Y1,attr"`
	X2 float64 `xml:"X2,attr"`
	Y2 float64 `xml:"Y2,attr"`
}

type Rectangle struct {
	ID     string  `xml:"ID,attr"`
	X      float64 `xml:"X,attr"`
	Y      float64 `xml:"Y,attr"`
	Width  float64 `xml:"Width,attr"`
	Height float64 `xml:"Height,attr"`
}

type Ellipse struct {
	ID      string  `xml:"ID,attr"`
	X       float64 `xml:"X,attr"`
	Y       float64 `xml:"Y,attr"`
	RadiusX float64 `xml:"RadiusX,attr"`
	RadiusY float64 `xml:"RadiusY,attr"`
}

type Polygon struct {
	ID     string `xml:"ID,attr"`
	Points string `xml:"Points,attr"`
}

// ParseID splits a "Type:n" identifier into its type prefix and numeric
// tail. Identifiers with a negative tail are legal; they mark transient
// entities that never existed on a server.
func ParseID(id string) (prefix string, n int64, err error) {
	idx := strings.LastIndex(id, ":")
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, fmt.Errorf("malformed identifier %q", id)
	}
	n, err = strconv.ParseInt(id[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed identifier %q: %w", id, err)
	}
	return id[:idx], n, nil
}

// IDNumber returns the numeric tail of a "Type:n" identifier, or an error
// if the identifier is malformed.
func IDNumber(id string) (int64, error) {
	_, n, err := ParseID(id)
	return n, err
}

// Encode serializes the document as indented XML with a standard header.
func (d *Document) Encode() ([]byte, error) {
	out, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding metadata document: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// Decode parses a serialized metadata document.
func Decode(data []byte) (*Document, error) {
	var d Document
	if err := xml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding metadata document: %w", err)
	}
	return &d, nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() (*Document, error) {
	data, err := xml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("cloning metadata document: %w", err)
	}
	return Decode(data)
}

// AnnotationIDs returns the identifiers of every annotation present in the
// document.
func (d *Document) AnnotationIDs() map[string]struct{} {
	ids := make(map[string]struct{}, d.StructuredAnnotations.Len())
	for _, a := range d.StructuredAnnotations.MapAnnotations {
		ids[a.ID] = struct{}{}
	}
	for _, a := range d.StructuredAnnotations.TagAnnotations {
		ids[a.ID] = struct{}{}
	}
	for _, a := range d.StructuredAnnotations.FileAnnotations {
		ids[a.ID] = struct{}{}
	}
	for _, a := range d.StructuredAnnotations.CommentAnnotations {
		ids[a.ID] = struct{}{}
	}
	return ids
}

// DanglingAnnotationRefs returns every annotation reference in the
// document that does not resolve to a present annotation.
func (d *Document) DanglingAnnotationRefs() []string {
	ids := d.AnnotationIDs()
	var dangling []string
	check := func(refs []AnnotationRef) {
		for _, r := range refs {
			if _, ok := ids[r.ID]; !ok {
				dangling = append(dangling, r.ID)
			}
		}
	}
	for _, p := range d.Projects {
		check(p.AnnotationRefs)
	}
	for _, ds := range d.Datasets {
		check(ds.AnnotationRefs)
	}
	for _, s := range d.Screens {
		check(s.AnnotationRefs)
	}
	for _, pl := range d.Plates {
		check(pl.AnnotationRefs)
	}
	for _, i := range d.Images {
		check(i.AnnotationRefs)
	}
	return dangling
}
