package changeset

import (
	"testing"
)

func TestBBoxWKT_Polygon(t *testing.T) {
	cs := &Changeset{
		MinLon: -0.5,
		MinLat: 51.25,
		MaxLon: 0.25,
		MaxLat: 51.75,
	}

	if !cs.HasBBox() {
		t.Fatal("Expected HasBBox to be true")
	}
	if cs.IsDegenerate() {
		t.Fatal("Expected bbox not to be degenerate")
	}

	want := "POLYGON((-0.5 51.25,0.25 51.25,0.25 51.75,-0.5 51.75,-0.5 51.25))"
	if got := cs.BBoxWKT(); got != want {
		t.Errorf("BBoxWKT() = %q, want %q", got, want)
	}
}

func TestBBoxWKT_DegeneratePoint(t *testing.T) {
	// A single-node edit: the feed reports min == max.
	cs := &Changeset{
		MinLon: 13.3777,
		MinLat: 52.5162,
		MaxLon: 13.3777,
		MaxLat: 52.5162,
	}

	if !cs.IsDegenerate() {
		t.Fatal("Expected bbox to be degenerate")
	}
	want := "POINT(13.3777 52.5162)"
	if got := cs.BBoxWKT(); got != want {
		t.Errorf("BBoxWKT() = %q, want %q", got, want)
	}
}

func TestBBoxWKT_SubThresholdSpan(t *testing.T) {
	// Spans below the degeneracy threshold collapse to a point even when
	// min and max differ in the last decimals.
	cs := &Changeset{
		MinLon: 10.0,
		MinLat: 45.0,
		MaxLon: 10.00000001,
		MaxLat: 45.00000001,
	}

	if !cs.IsDegenerate() {
		t.Fatal("Expected sub-threshold spans to be degenerate")
	}
}

func TestBBoxWKT_OneThinAxis(t *testing.T) {
	// Only one axis degenerate: still a polygon.
	cs := &Changeset{
		MinLon: 10.0,
		MinLat: 45.0,
		MaxLon: 10.0,
		MaxLat: 46.0,
	}

	if cs.IsDegenerate() {
		t.Fatal("Expected bbox with one wide axis not to be degenerate")
	}
	want := "POLYGON((10 45,10 45,10 46,10 46,10 45))"
	if got := cs.BBoxWKT(); got != want {
		t.Errorf("BBoxWKT() = %q, want %q", got, want)
	}
}

func TestHasBBox_Inverted(t *testing.T) {
	cs := &Changeset{
		MinLon: 1.0,
		MinLat: 1.0,
		MaxLon: -1.0,
		MaxLat: -1.0,
	}
	if cs.HasBBox() {
		t.Error("Expected HasBBox to be false for an inverted box")
	}
}

func TestBBoxWKT_AntimeridianBoundary(t *testing.T) {
	cs := &Changeset{
		MinLon: 180,
		MinLat: 0,
		MaxLon: 180,
		MaxLat: 0,
	}
	want := "POINT(180 0)"
	if got := cs.BBoxWKT(); got != want {
		t.Errorf("BBoxWKT() = %q, want %q", got, want)
	}
}
