// Package geom models rendered schematic geometry and implements the
// deterministic spacing check that gates generated circuits.
package geom

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Point is a location on the schematic grid.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned bounding box.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the horizontal extent of the rect.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the vertical extent of the rect.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool { return r.MaxX <= r.MinX || r.MaxY <= r.MinY }

// Contains reports whether other lies fully within r (boundary included).
func (r Rect) Contains(other Rect) bool {
	return other.MinX >= r.MinX && other.MinY >= r.MinY &&
		other.MaxX <= r.MaxX && other.MaxY <= r.MaxY
}

// Translate returns r shifted by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{MinX: r.MinX + dx, MinY: r.MinY + dy, MaxX: r.MaxX + dx, MaxY: r.MaxY + dy}
}

// Instance is a placed subcell with its transformed symbol outline.
type Instance struct {
	Name   string `json:"name"`
	Pos    Point  `json:"pos"`
	Bounds Rect   `json:"bounds"`
}

// Port is a cell port placed on the schematic. Ports occupy a 1x1 cell
// anchored at Pos.
type Port struct {
	Name  string `json:"name"`
	Pos   Point  `json:"pos"`
	Align string `json:"align,omitempty"`
}

// Box returns the 1x1 bounding box a port occupies.
func (p Port) Box() Rect {
	return Rect{MinX: p.Pos.X, MinY: p.Pos.Y, MaxX: p.Pos.X + 1, MaxY: p.Pos.Y + 1}
}

// Endpoint is one terminal of a net: either an instance pin or a cell port.
type Endpoint struct {
	Element string `json:"element,omitempty"` // owning instance; empty for ports
	Pin     string `json:"pin"`
	Pos     Point  `json:"pos"`
}

// Label returns a human-readable name for the endpoint.
func (e Endpoint) Label() string {
	if e.Element != "" {
		return e.Element + "." + e.Pin
	}
	return "port " + e.Pin
}

// Net is an electrical connection with its routed polyline.
type Net struct {
	Name      string     `json:"name"`
	Endpoints []Endpoint `json:"endpoints,omitempty"`
	Route     []Point    `json:"route,omitempty"`
	Routed    bool       `json:"routed,omitempty"` // route produced by the auto-router
}

// Schematic is the rendered geometry of one cell's schematic view.
type Schematic struct {
	Cell      string     `json:"cell"`
	Outline   Rect       `json:"outline"`
	Instances []Instance `json:"instances"`
	Ports     []Port     `json:"ports"`
	Nets      []Net      `json:"nets,omitempty"`
}

// DecodeSchematic reads schematic geometry JSON produced by the toolchain.
func DecodeSchematic(r io.Reader) (*Schematic, error) {
	var s Schematic
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode schematic geometry: %w", err)
	}
	if s.Cell == "" {
		return nil, fmt.Errorf("schematic geometry missing cell name")
	}
	return &s, nil
}

// axisGap returns the separation between two intervals on one axis.
// Zero means the intervals overlap or touch.
func axisGap(aLow, aHigh, bLow, bHigh float64) float64 {
	gap := bLow - aHigh
	if d := aLow - bHigh; d > gap {
		gap = d
	}
	if gap < 0 {
		return 0
	}
	return gap
}

// fmtNum formats a coordinate or gap the way violation messages expect:
// integral values without a decimal point.
func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
