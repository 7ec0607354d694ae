// Package catalog holds the Layer/Category/Group data model, the
// in-memory Catalog those layers live in, and the SQLite-backed
// configuration store that persists them.
package catalog

import (
	"html"
	"sort"
	"strconv"
	"strings"
)

// StateLayer selects which layers a lookup considers.
type StateLayer uint8

const (
	StateAny StateLayer = iota
	StatePublished
)

// Category groups layers for display and for the "category" tile
// endpoint.
type Category struct {
	ID          string
	Name        string
	Description string
}

// Group gates layer access; a user belongs to zero or more groups.
type Group struct {
	ID          string
	Name        string
	Description string
}

// Layer is the configuration record for one renderable PostGIS table.
// Optional fields are pointers so their absence (unset in the config
// store) is distinguishable from an explicit zero value; Get* accessors
// apply the documented defaults.
type Layer struct {
	ID          string
	Category    Category
	Geometry    string
	Name        string
	Alias       string
	Description string
	Schema      string
	TableName   string
	Fields      []string

	Filter               *string
	SRID                 *uint32
	Geom                 *string
	SQLMode              *string
	Buffer               *uint32
	Extent               *uint32
	ZMin                 *uint32
	ZMax                 *uint32
	ZMaxDoNotSimplify    *uint32
	BufferDoNotSimplify  *uint32
	ExtentDoNotSimplify  *uint32
	ClipGeom             *bool
	DeleteCacheOnStart   *bool
	MaxCacheAge          *uint64
	MaxRecords           *uint64

	Published bool
	URL       *string
	Groups    []Group
}

func (l *Layer) GetFilter() string {
	if l.Filter == nil {
		return ""
	}
	return *l.Filter
}

func (l *Layer) GetGeom() string {
	if l.Geom == nil {
		return "geom"
	}
	return *l.Geom
}

func (l *Layer) GetSQLMode() string {
	if l.SQLMode == nil {
		return "CTE"
	}
	return *l.SQLMode
}

func (l *Layer) GetSRID() uint32 {
	if l.SRID == nil {
		return 4326
	}
	return *l.SRID
}

func (l *Layer) GetBuffer() uint32 {
	if l.Buffer == nil {
		return 256
	}
	return *l.Buffer
}

func (l *Layer) GetExtent() uint32 {
	if l.Extent == nil {
		return 4096
	}
	return *l.Extent
}

func (l *Layer) GetZMin() uint32 {
	if l.ZMin == nil {
		return 0
	}
	return *l.ZMin
}

func (l *Layer) GetZMax() uint32 {
	if l.ZMax == nil {
		return 22
	}
	return *l.ZMax
}

func (l *Layer) GetZMaxDoNotSimplify() uint32 {
	if l.ZMaxDoNotSimplify == nil {
		return 16
	}
	return *l.ZMaxDoNotSimplify
}

func (l *Layer) GetBufferDoNotSimplify() uint32 {
	if l.BufferDoNotSimplify == nil {
		return 256
	}
	return *l.BufferDoNotSimplify
}

func (l *Layer) GetExtentDoNotSimplify() uint32 {
	if l.ExtentDoNotSimplify == nil {
		return 4096
	}
	return *l.ExtentDoNotSimplify
}

func (l *Layer) GetClipGeom() bool {
	if l.ClipGeom == nil {
		return true
	}
	return *l.ClipGeom
}

func (l *Layer) GetDeleteCacheOnStart() bool {
	if l.DeleteCacheOnStart == nil {
		return false
	}
	return *l.DeleteCacheOnStart
}

func (l *Layer) GetMaxCacheAge() uint64 {
	if l.MaxCacheAge == nil {
		return 0
	}
	return *l.MaxCacheAge
}

func (l *Layer) GetMaxRecords() uint64 {
	if l.MaxRecords == nil {
		return 0
	}
	return *l.MaxRecords
}

// CompositeName is the cache-key/display name "{category}_{name}".
func (l *Layer) CompositeName() string {
	return l.Category.Name + "_" + l.Name
}

// GroupsAsString joins group names with " | ", for display.
func (l *Layer) GroupsAsString() string {
	names := l.GroupsAsSlice()
	return strings.Join(names, " | ")
}

// GroupsAsSlice returns the layer's group names.
func (l *Layer) GroupsAsSlice() []string {
	names := make([]string, 0, len(l.Groups))
	for _, g := range l.Groups {
		names = append(names, g.Name)
	}
	return names
}

// IsAdmin reports whether the layer is restricted to the "admin" group.
func (l *Layer) IsAdmin() bool {
	for _, name := range l.GroupsAsSlice() {
		if name == "admin" {
			return true
		}
	}
	return false
}

// InfoHTML renders an HTML description block in which every value is
// escaped with html.EscapeString.
func (l *Layer) InfoHTML() string {
	var b strings.Builder
	field := func(label, value string) {
		b.WriteString("<strong>")
		b.WriteString(label)
		b.WriteString(":</strong> ")
		b.WriteString(html.EscapeString(value))
		b.WriteString("<br>")
	}
	field("ID", l.ID)
	field("Name", l.Name)
	field("Alias", l.Alias)
	field("Description", l.Description)
	field("Schema", l.Schema)
	field("Table", l.TableName)
	field("Fields", strings.Join(l.Fields, ", "))
	field("Field geom", l.GetGeom())
	field("SQL Mode", l.GetSQLMode())
	field("SRID", strconv.FormatUint(uint64(l.GetSRID()), 10))
	field("Filter", l.GetFilter())
	field("Buffer", strconv.FormatUint(uint64(l.GetBuffer()), 10))
	field("Extent", strconv.FormatUint(uint64(l.GetExtent()), 10))
	field("Zmin", strconv.FormatUint(uint64(l.GetZMin()), 10))
	field("Zmax", strconv.FormatUint(uint64(l.GetZMax()), 10))
	field("Zmax do not simplify", strconv.FormatUint(uint64(l.GetZMaxDoNotSimplify()), 10))
	field("Buffer do not simplify", strconv.FormatUint(uint64(l.GetBufferDoNotSimplify()), 10))
	field("Extent do not simplify", strconv.FormatUint(uint64(l.GetExtentDoNotSimplify()), 10))
	field("Clip geom", strconv.FormatBool(l.GetClipGeom()))
	field("Delete cache on start", strconv.FormatBool(l.GetDeleteCacheOnStart()))
	field("Max cache age", strconv.FormatUint(l.GetMaxCacheAge(), 10))
	field("Max records", strconv.FormatUint(l.GetMaxRecords(), 10))
	field("Published", strconv.FormatBool(l.Published))
	field("Allowed Groups", l.GroupsAsString())

	out := b.String()
	out = strings.ReplaceAll(out, "\r", "")
	return out
}

// Validate checks that name, schema, table_name and fields are
// non-empty, that zmin <= zmax and that zmax_do_not_simplify <= zmax
// (both after defaults), following the teacher's per-missing-field
// error style (provider/postgis.go AddLayer). It does not check that
// name, schema or table_name are well-formed SQL identifiers.
func (l *Layer) Validate() error {
	switch {
	case l.Name == "":
		return fieldError("name")
	case l.Schema == "":
		return fieldError("schema")
	case l.TableName == "":
		return fieldError("table_name")
	case len(l.Fields) == 0:
		return fieldError("fields")
	}
	if l.GetZMin() > l.GetZMax() {
		return &ValidationError{Reason: "zmin must be <= zmax"}
	}
	if l.GetZMaxDoNotSimplify() > l.GetZMax() {
		return &ValidationError{Reason: "zmax_do_not_simplify must be <= zmax"}
	}
	return nil
}

func fieldError(name string) error {
	return &ValidationError{Reason: name + " is required"}
}

// ValidationError is returned by Layer.Validate.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid layer: " + e.Reason }

// SortByCategoryAndName sorts layers by lower-cased category name, then
// lower-cased layer name, matching the display order used throughout
// the admin surface.
func SortByCategoryAndName(layers []Layer) {
	sort.SliceStable(layers, func(i, j int) bool {
		ci, cj := strings.ToLower(layers[i].Category.Name), strings.ToLower(layers[j].Category.Name)
		if ci != cj {
			return ci < cj
		}
		return strings.ToLower(layers[i].Name) < strings.ToLower(layers[j].Name)
	})
}
