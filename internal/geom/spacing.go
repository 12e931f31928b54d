package geom

import (
	"fmt"
	"math"
)

// Kind classifies a spacing violation.
type Kind string

const (
	KindOverlap     Kind = "overlap"
	KindClearance   Kind = "clearance"
	KindOutOfBounds Kind = "out_of_bounds"
	KindMisaligned  Kind = "misaligned"
	KindRoute       Kind = "route"
)

// Axis names the direction a clearance or misalignment violation concerns.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
)

// ElementKind distinguishes placed instances from cell ports.
type ElementKind string

const (
	ElementInstance ElementKind = "instance"
	ElementPort     ElementKind = "port"
)

// Violation is a single spacing-check finding. The check never stops at the
// first problem: callers receive every violation in deterministic order.
type Violation struct {
	Kind    Kind        `json:"kind"`
	A       string      `json:"a"`
	AKind   ElementKind `json:"a_kind,omitempty"`
	B       string      `json:"b,omitempty"`
	BKind   ElementKind `json:"b_kind,omitempty"`
	Net     string      `json:"net,omitempty"`
	Axis    Axis        `json:"axis,omitempty"`
	Gap     float64     `json:"gap,omitempty"`
	Need    float64     `json:"need,omitempty"`
	Message string      `json:"message"`
}

// Params holds the spacing-check thresholds.
type Params struct {
	// MinGap is the minimum clear distance, in grid units, between any two
	// elements that face each other on one axis.
	MinGap float64
	// AlignTol is the largest nonzero offset between two connection points
	// that still counts as an intended (and therefore misaligned) alignment.
	AlignTol float64
}

// DefaultParams returns the standard thresholds: a 2-unit clearance and a
// 1-unit alignment tolerance.
func DefaultParams() Params {
	return Params{MinGap: 2, AlignTol: 1}
}

type element struct {
	name  string
	label string
	kind  ElementKind
	box   Rect
}

// CheckSpacing runs every spacing rule against a rendered schematic and
// returns all violations found. The order is deterministic: pairwise
// overlap/clearance findings first, then out-of-bounds elements, then
// misaligned connection points, then route crossings.
func CheckSpacing(s *Schematic, p Params) []Violation {
	elements := make([]element, 0, len(s.Instances)+len(s.Ports))
	for _, inst := range s.Instances {
		elements = append(elements, element{
			name:  inst.Name,
			label: inst.Name,
			kind:  ElementInstance,
			box:   inst.Bounds,
		})
	}
	for _, port := range s.Ports {
		elements = append(elements, element{
			name:  port.Name,
			label: "port " + port.Name,
			kind:  ElementPort,
			box:   port.Box(),
		})
	}

	var violations []Violation
	violations = append(violations, checkPairs(elements, p)...)
	violations = append(violations, checkBounds(s.Outline, elements)...)
	violations = append(violations, checkAlignment(s.Nets, p)...)
	violations = append(violations, checkRoutes(s.Nets, s.Instances)...)
	return violations
}

// checkPairs applies the pairwise overlap and clearance rules. Port-port
// pairs are exempt, as are pairs separated on both axes.
func checkPairs(elements []element, p Params) []Violation {
	var violations []Violation
	for i := 0; i < len(elements); i++ {
		for j := i + 1; j < len(elements); j++ {
			a, b := elements[i], elements[j]
			if a.kind == ElementPort && b.kind == ElementPort {
				continue
			}

			xGap := axisGap(a.box.MinX, a.box.MaxX, b.box.MinX, b.box.MaxX)
			yGap := axisGap(a.box.MinY, a.box.MaxY, b.box.MinY, b.box.MaxY)

			// Diagonal separation: clear on both axes.
			if xGap > 0 && yGap > 0 {
				continue
			}

			if xGap == 0 && yGap == 0 {
				violations = append(violations, Violation{
					Kind:    KindOverlap,
					A:       a.name,
					AKind:   a.kind,
					B:       b.name,
					BKind:   b.kind,
					Message: fmt.Sprintf("%s and %s: bounding boxes overlap or touch", a.label, b.label),
				})
				continue
			}

			if xGap > 0 && xGap < p.MinGap {
				violations = append(violations, pairViolation(a, b, AxisX, xGap, p.MinGap))
			} else if yGap > 0 && yGap < p.MinGap {
				violations = append(violations, pairViolation(a, b, AxisY, yGap, p.MinGap))
			}
		}
	}
	return violations
}

func pairViolation(a, b element, axis Axis, gap, need float64) Violation {
	dir := "horizontal"
	if axis == AxisY {
		dir = "vertical"
	}
	return Violation{
		Kind:  KindClearance,
		A:     a.name,
		AKind: a.kind,
		B:     b.name,
		BKind: b.kind,
		Axis:  axis,
		Gap:   gap,
		Need:  need,
		Message: fmt.Sprintf("%s at (%s, %s) and %s at (%s, %s): %s-unit %s gap (need %s)",
			a.label, fmtNum(a.box.MinX), fmtNum(a.box.MinY),
			b.label, fmtNum(b.box.MinX), fmtNum(b.box.MinY),
			fmtNum(gap), dir, fmtNum(need)),
	}
}

// checkBounds flags elements that extend past a non-empty schematic outline.
func checkBounds(outline Rect, elements []element) []Violation {
	if outline.Empty() {
		return nil
	}
	var violations []Violation
	for _, e := range elements {
		if outline.Contains(e.box) {
			continue
		}
		violations = append(violations, Violation{
			Kind:  KindOutOfBounds,
			A:     e.name,
			AKind: e.kind,
			Message: fmt.Sprintf("%s at (%s, %s) extends outside the outline (%s, %s)-(%s, %s)",
				e.label, fmtNum(e.box.MinX), fmtNum(e.box.MinY),
				fmtNum(outline.MinX), fmtNum(outline.MinY),
				fmtNum(outline.MaxX), fmtNum(outline.MaxY)),
		})
	}
	return violations
}

// checkAlignment flags pairs of connection points on the same net that are
// offset by at most AlignTol on one axis. Such points were meant to line up
// for a straight wire; the off-grid offset produces a kinked route.
func checkAlignment(nets []Net, p Params) []Violation {
	var violations []Violation
	for _, net := range nets {
		for i := 0; i < len(net.Endpoints); i++ {
			for j := i + 1; j < len(net.Endpoints); j++ {
				a, b := net.Endpoints[i], net.Endpoints[j]
				dx := math.Abs(b.Pos.X - a.Pos.X)
				dy := math.Abs(b.Pos.Y - a.Pos.Y)

				axis, off := Axis(""), 0.0
				if dx > 0 && dx <= p.AlignTol {
					axis, off = AxisX, dx
				}
				if dy > 0 && dy <= p.AlignTol && (axis == "" || dy < off) {
					axis, off = AxisY, dy
				}
				if axis == "" {
					continue
				}

				dir := "horizontally"
				if axis == AxisY {
					dir = "vertically"
				}
				violations = append(violations, Violation{
					Kind:  KindMisaligned,
					A:     a.Label(),
					B:     b.Label(),
					Net:   net.Name,
					Axis:  axis,
					Gap:   off,
					Need:  0,
					Message: fmt.Sprintf("net %s: %s and %s are misaligned by %s unit(s) %s",
						net.Name, a.Label(), b.Label(), fmtNum(off), dir),
				})
			}
		}
	}
	return violations
}

// checkRoutes flags auto-routed net segments that cut through an instance
// body. Instances that terminate the net are exempt: their pins sit on the
// bounding box by construction.
func checkRoutes(nets []Net, instances []Instance) []Violation {
	var violations []Violation
	for _, net := range nets {
		if !net.Routed || len(net.Route) < 2 {
			continue
		}
		owners := make(map[string]bool, len(net.Endpoints))
		for _, e := range net.Endpoints {
			if e.Element != "" {
				owners[e.Element] = true
			}
		}
		for _, inst := range instances {
			if owners[inst.Name] {
				continue
			}
			for k := 0; k+1 < len(net.Route); k++ {
				if segmentCrossesRect(net.Route[k], net.Route[k+1], inst.Bounds) {
					violations = append(violations, Violation{
						Kind:    KindRoute,
						A:       net.Name,
						B:       inst.Name,
						BKind:   ElementInstance,
						Net:     net.Name,
						Message: fmt.Sprintf("net %s: route crosses %s", net.Name, inst.Name),
					})
					break
				}
			}
		}
	}
	return violations
}

// segmentCrossesRect reports whether an orthogonal segment passes through the
// strict interior of a rect. Non-orthogonal segments never match: schematic
// routes are rectilinear, and a conservative answer avoids false findings.
func segmentCrossesRect(p, q Point, r Rect) bool {
	switch {
	case p.Y == q.Y: // horizontal
		lo, hi := math.Min(p.X, q.X), math.Max(p.X, q.X)
		return p.Y > r.MinY && p.Y < r.MaxY && hi > r.MinX && lo < r.MaxX
	case p.X == q.X: // vertical
		lo, hi := math.Min(p.Y, q.Y), math.Max(p.Y, q.Y)
		return p.X > r.MinX && p.X < r.MaxX && hi > r.MinY && lo < r.MaxY
	}
	return false
}
