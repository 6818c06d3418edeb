package transfer

import (
	"fmt"
	"sort"
)

// Field is one provenance metadata attribute that can be attached as an
// annotation key/value pair at pack time and honored at unpack time.
type Field string

const (
	FieldImgID     Field = "img_id"
	FieldTimestamp Field = "timestamp"
	FieldSoftware  Field = "software"
	FieldVersion   Field = "version"
	FieldMD5       Field = "md5"
	FieldHostname  Field = "hostname"
	FieldDBID      Field = "db_id"
	FieldOrigUser  Field = "orig_user"
	FieldOrigGroup Field = "orig_group"
)

// Fields is the fixed enumeration of provenance fields.
var Fields = []Field{
	FieldImgID,
	FieldTimestamp,
	FieldSoftware,
	FieldVersion,
	FieldMD5,
	FieldHostname,
	FieldDBID,
	FieldOrigUser,
	FieldOrigGroup,
}

// Field-selection aliases accepted alongside field names.
const (
	AliasAll  = "all"
	AliasNone = "none"
)

// allFields is what the "all" alias expands to. db_id is deliberately
// absent: database ids are only attached when explicitly requested.
var allFields = []Field{
	FieldImgID,
	FieldTimestamp,
	FieldSoftware,
	FieldVersion,
	FieldHostname,
	FieldMD5,
	FieldOrigUser,
	FieldOrigGroup,
}

// FieldTokens lists every token accepted by the --metadata flag.
func FieldTokens() []string {
	tokens := []string{AliasAll, AliasNone}
	for _, f := range Fields {
		tokens = append(tokens, string(f))
	}
	return tokens
}

// ResolveFields resolves user-facing field tokens into the effective,
// de-duplicated field set, sorted for stable annotation output. An empty
// token list defaults to "all". A "none" token anywhere wins and yields
// the empty set.
func ResolveFields(tokens []string) ([]Field, error) {
	if len(tokens) == 0 {
		tokens = []string{AliasAll}
	}

	var selected []Field
	for _, tok := range tokens {
		switch tok {
		case AliasNone:
			return nil, nil
		case AliasAll:
			selected = append(selected, allFields...)
		default:
			f := Field(tok)
			if !validField(f) {
				return nil, &InputError{Reason: fmt.Sprintf("unknown metadata field %q", tok)}
			}
			selected = append(selected, f)
		}
	}

	seen := make(map[Field]struct{}, len(selected))
	fields := make([]Field, 0, len(selected))
	for _, f := range selected {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields, nil
}

func validField(f Field) bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// FieldStrings converts a field set into plain strings for the
// collaborator boundary.
func FieldStrings(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}
