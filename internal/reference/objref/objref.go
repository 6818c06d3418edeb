// Package objref parses the typed object references used on the imgxfer
// command line.
package objref

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the closed set of container and leaf object types that can be
// addressed for transfer.
type Kind string

const (
	KindImage   Kind = "Image"
	KindDataset Kind = "Dataset"
	KindProject Kind = "Project"
	KindPlate   Kind = "Plate"
	KindScreen  Kind = "Screen"
)

// Kinds lists every valid Kind, in the order used for help output.
var Kinds = []Kind{KindImage, KindDataset, KindProject, KindPlate, KindScreen}

// Ref identifies one object on the source repository.
//
// The accepted reference format is:
//
//	[<Type>:]<id>
//
// where <Type> is one of Kinds and a bare <id> is treated as Project:<id>.
type Ref struct {
	Kind Kind
	ID   int64
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// IsLeafOrWellContainer reports whether the reference names a single
// image, plate or screen. Compliance-mode packing rejects these.
func (r Ref) IsLeafOrWellContainer() bool {
	return r.Kind == KindImage || r.Kind == KindPlate || r.Kind == KindScreen
}

// Parse parses an input string into a Ref. A bare integer defaults to a
// Project reference, mirroring the server CLI convention.
func Parse(input string) (Ref, error) {
	if input == "" {
		return Ref{}, fmt.Errorf("empty object reference")
	}

	kind := KindProject
	idPart := input
	if idx := strings.Index(input, ":"); idx != -1 {
		k, ok := kindFromString(input[:idx])
		if !ok {
			return Ref{}, fmt.Errorf("unknown object type %q in %q, must be one of %v", input[:idx], input, Kinds)
		}
		kind = k
		idPart = input[idx+1:]
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id < 0 {
		return Ref{}, fmt.Errorf("invalid object id %q in %q", idPart, input)
	}

	return Ref{Kind: kind, ID: id}, nil
}

func kindFromString(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}
