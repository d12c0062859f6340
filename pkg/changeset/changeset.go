// Package changeset defines the OSM changeset domain model and the
// streaming XML parser that produces it.
package changeset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// SRID is the spatial reference system for all changeset geometries.
const SRID = 4326

// degenerateSpan is the bbox span below which a box collapses to a point.
const degenerateSpan = 1e-7

// Comment is a single entry in a changeset's discussion thread.
type Comment struct {
	UID      int64      `json:"uid"`
	Username string     `json:"username,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Text     string     `json:"text,omitempty"`
}

// Changeset is the primary entity: one OSM unit of edit activity with its
// author, timestamps, bounding box, tags and discussion.
//
// Username is nil for anonymous edits. ClosedAt is nil while the changeset
// is still open.
type Changeset struct {
	ID            int64
	Username      *string
	UID           int64
	CreatedAt     time.Time
	ClosedAt      *time.Time
	Open          bool
	NumChanges    int
	CommentsCount int

	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64

	Tags     map[string]string
	Comments []Comment
}

// HasBBox reports whether the bounding box satisfies the ordering invariant.
func (cs *Changeset) HasBBox() bool {
	return cs.MinLon <= cs.MaxLon && cs.MinLat <= cs.MaxLat
}

// IsDegenerate reports whether the bounding box collapses to a point:
// both spans are below degenerateSpan.
func (cs *Changeset) IsDegenerate() bool {
	return math.Abs(cs.MaxLon-cs.MinLon) < degenerateSpan &&
		math.Abs(cs.MaxLat-cs.MinLat) < degenerateSpan
}

// BBoxWKT returns the bounding box geometry as WKT: a POINT for a
// degenerate box, otherwise the rectangular POLYGON of the envelope with
// vertices in a fixed, closed ring order.
func (cs *Changeset) BBoxWKT() string {
	if cs.IsDegenerate() {
		return "POINT(" + coord(cs.MinLon) + " " + coord(cs.MinLat) + ")"
	}

	var b strings.Builder
	b.WriteString("POLYGON((")
	b.WriteString(coord(cs.MinLon) + " " + coord(cs.MinLat) + ",")
	b.WriteString(coord(cs.MaxLon) + " " + coord(cs.MinLat) + ",")
	b.WriteString(coord(cs.MaxLon) + " " + coord(cs.MaxLat) + ",")
	b.WriteString(coord(cs.MinLon) + " " + coord(cs.MaxLat) + ",")
	b.WriteString(coord(cs.MinLon) + " " + coord(cs.MinLat))
	b.WriteString("))")
	return b.String()
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
