package changeset

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/osmtools/changesetd/internal/logger"
)

// ParserOptions controls optional parser behavior.
type ParserOptions struct {
	// FromDate, when non-zero, drops changesets created before it.
	FromDate time.Time
	// ToDate, when non-zero, drops changesets created after it.
	ToDate time.Time
}

// Parser consumes a decompressed XML byte stream and yields changesets in
// document order. It parses incrementally: memory use is bounded by the
// size of the current <changeset> element, not the document.
//
// Elements that fail validation (missing or non-positive id, coordinates
// out of range, unparseable created_at) are logged at WARN and skipped.
// A fatal stream error aborts the parse and is returned from Next.
type Parser struct {
	dec  *xml.Decoder
	opts ParserOptions
}

// NewParser creates a Parser reading from r.
func NewParser(r io.Reader, opts ParserOptions) *Parser {
	return &Parser{
		dec:  xml.NewDecoder(r),
		opts: opts,
	}
}

// Next returns the next valid changeset in the stream. It returns io.EOF
// when the stream is exhausted, or a wrapped decode error on a fatal
// stream failure.
func (p *Parser) Next() (*Changeset, error) {
	for {
		tok, err := p.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("xml stream error: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "changeset" {
			continue
		}

		var elem xmlChangeset
		if err := p.dec.DecodeElement(&elem, &start); err != nil {
			// Malformed element structure is fatal: the decoder's position
			// in the stream is no longer trustworthy.
			return nil, fmt.Errorf("decode changeset element: %w", err)
		}

		cs, ok := elem.toChangeset()
		if !ok {
			continue
		}

		if !p.opts.FromDate.IsZero() && cs.CreatedAt.Before(p.opts.FromDate) {
			continue
		}
		if !p.opts.ToDate.IsZero() && cs.CreatedAt.After(p.opts.ToDate) {
			continue
		}

		return cs, nil
	}
}

// xmlChangeset mirrors the <changeset> element shape on the wire.
type xmlChangeset struct {
	ID            string       `xml:"id,attr"`
	User          string       `xml:"user,attr"`
	UID           string       `xml:"uid,attr"`
	CreatedAt     string       `xml:"created_at,attr"`
	ClosedAt      string       `xml:"closed_at,attr"`
	Open          string       `xml:"open,attr"`
	NumChanges    string       `xml:"num_changes,attr"`
	CommentsCount string       `xml:"comments_count,attr"`
	MinLon        string       `xml:"min_lon,attr"`
	MinLat        string       `xml:"min_lat,attr"`
	MaxLon        string       `xml:"max_lon,attr"`
	MaxLat        string       `xml:"max_lat,attr"`
	Tags          []xmlTag     `xml:"tag"`
	Comments      []xmlComment `xml:"discussion>comment"`
}

type xmlTag struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

type xmlComment struct {
	UID      string `xml:"uid,attr"`
	User     string `xml:"user,attr"`
	Username string `xml:"username,attr"`
	Date     string `xml:"date,attr"`
	Text     string `xml:"text"`
}

// toChangeset validates and converts the raw element. The second return
// value is false when the element must be skipped.
func (x *xmlChangeset) toChangeset() (*Changeset, bool) {
	id, err := strconv.ParseInt(x.ID, 10, 64)
	if err != nil || id <= 0 {
		logger.Warn("Skipping changeset with invalid id", "id", x.ID)
		return nil, false
	}

	createdAt, err := parseTime(x.CreatedAt)
	if err != nil || createdAt == nil {
		logger.Warn("Skipping changeset with unparseable created_at",
			"changeset_id", id, "created_at", x.CreatedAt)
		return nil, false
	}

	minLon := parseCoord(x.MinLon)
	minLat := parseCoord(x.MinLat)
	maxLon := parseCoord(x.MaxLon)
	maxLat := parseCoord(x.MaxLat)
	if !validLon(minLon) || !validLon(maxLon) || !validLat(minLat) || !validLat(maxLat) {
		logger.Warn("Skipping changeset with out-of-range bbox",
			"changeset_id", id,
			"min_lon", minLon, "min_lat", minLat,
			"max_lon", maxLon, "max_lat", maxLat)
		return nil, false
	}

	cs := &Changeset{
		ID:         id,
		UID:        parseInt(x.UID),
		CreatedAt:  *createdAt,
		Open:       x.Open == "true",
		NumChanges: int(parseInt(x.NumChanges)),
		MinLon:     minLon,
		MinLat:     minLat,
		MaxLon:     maxLon,
		MaxLat:     maxLat,
	}

	// Anonymous changesets carry no user attribute; they are retained
	// with a nil username.
	if x.User != "" {
		user := x.User
		cs.Username = &user
	}

	if closedAt, err := parseTime(x.ClosedAt); err == nil && closedAt != nil {
		cs.ClosedAt = closedAt
	}

	if len(x.Tags) > 0 {
		cs.Tags = make(map[string]string, len(x.Tags))
		for _, t := range x.Tags {
			// Duplicate keys take the last value.
			cs.Tags[t.K] = t.V
		}
	}

	for _, c := range x.Comments {
		comment := Comment{
			UID:  parseInt(c.UID),
			Text: c.Text,
		}
		// The feed has carried both spellings over the years.
		if c.User != "" {
			comment.Username = c.User
		} else {
			comment.Username = c.Username
		}
		if date, err := parseTime(c.Date); err == nil && date != nil {
			comment.Date = date
		}
		cs.Comments = append(cs.Comments, comment)
	}

	// comments_count from the attribute when present, otherwise derived
	// from the discussion thread.
	if n := parseInt(x.CommentsCount); n > 0 {
		cs.CommentsCount = int(n)
	} else {
		cs.CommentsCount = len(cs.Comments)
	}

	return cs, true
}

// parseTime parses ISO 8601 timestamps; a trailing Z is treated as UTC.
// Returns (nil, nil) for an empty string.
func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func parseCoord(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func validLon(v float64) bool { return v >= -180 && v <= 180 }
func validLat(v float64) bool { return v >= -90 && v <= 90 }
