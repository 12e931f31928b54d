// Package layout plans deterministic fixes for spacing failures. The
// planner works from the rendered geometry and the recorded violations,
// never from the source text: it decides which element moves and where,
// and expresses each decision as a textual edit for the ord package to
// apply. Ports anchor the cell interface, so between a port and an
// instance the instance moves; between two instances the later-placed one
// moves.
package layout

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucasnoah/ordpilot/internal/geom"
	"github.com/lucasnoah/ordpilot/internal/ord"
	"github.com/lucasnoah/ordpilot/internal/stage"
)

// ErrInfeasible reports that no planned edit can address the violations.
// The retry loop treats it as exhaustion: more rounds would replan the
// same nothing.
var ErrInfeasible = errors.New("layout fix infeasible: no applicable edit")

// Propose plans one round of layout edits for a spacing failure. Each
// element receives at most one position edit per round; violations whose
// mover is already being moved rely on that edit and the re-check. The
// returned edits are in violation order.
func Propose(s *geom.Schematic, f *stage.Failure, p geom.Params) ([]ord.Edit, error) {
	if f == nil {
		return nil, errors.New("layout fixer needs a spacing failure")
	}
	if f.Code != stage.CodeSpacingViolation {
		return nil, fmt.Errorf("layout fixer needs a spacing failure, got %s", f.Code)
	}
	if s == nil {
		return nil, errors.New("layout fixer needs rendered geometry")
	}
	if len(f.Violations) == 0 {
		return nil, ErrInfeasible
	}

	sc := newScene(s)
	var edits []ord.Edit
	moved := map[string]bool{}
	routed := map[string]bool{}

	for _, v := range f.Violations {
		var edit *ord.Edit
		switch v.Kind {
		case geom.KindOverlap:
			edit = sc.planOverlap(v, p)
		case geom.KindClearance:
			edit = sc.planClearance(v, p)
		case geom.KindOutOfBounds:
			edit = sc.planBounds(v)
		case geom.KindMisaligned:
			edit = sc.planAlignment(v)
		case geom.KindRoute:
			edit = sc.planRoute(v, p)
		}
		if edit == nil {
			continue
		}
		key := editKey(*edit)
		if edit.Kind == ord.EditRoute {
			if routed[key] {
				continue
			}
			routed[key] = true
		} else {
			if moved[key] {
				continue
			}
			moved[key] = true
		}
		edits = append(edits, *edit)
	}

	if len(edits) == 0 {
		return nil, ErrInfeasible
	}
	return edits, nil
}

func editKey(e ord.Edit) string {
	if e.Port {
		return "port " + e.Element
	}
	return e.Element
}

// scene indexes a schematic for violation lookups.
type scene struct {
	outline geom.Rect
	insts   map[string]geom.Instance
	ports   map[string]geom.Port
	nets    map[string]geom.Net
}

func newScene(s *geom.Schematic) *scene {
	sc := &scene{
		outline: s.Outline,
		insts:   make(map[string]geom.Instance, len(s.Instances)),
		ports:   make(map[string]geom.Port, len(s.Ports)),
		nets:    make(map[string]geom.Net, len(s.Nets)),
	}
	for _, inst := range s.Instances {
		sc.insts[inst.Name] = inst
	}
	for _, port := range s.Ports {
		sc.ports[port.Name] = port
	}
	for _, net := range s.Nets {
		sc.nets[net.Name] = net
	}
	return sc
}

// mover resolves the element that moves for a pair violation. Ports stay
// put whenever an instance is available.
func (sc *scene) mover(v geom.Violation) (name string, port bool, ok bool) {
	if v.BKind == geom.ElementInstance {
		if _, found := sc.insts[v.B]; found {
			return v.B, false, true
		}
	}
	if v.AKind == geom.ElementInstance {
		if _, found := sc.insts[v.A]; found {
			return v.A, false, true
		}
	}
	if v.BKind == geom.ElementPort {
		if _, found := sc.ports[v.B]; found {
			return v.B, true, true
		}
	}
	if v.AKind == geom.ElementPort {
		if _, found := sc.ports[v.A]; found {
			return v.A, true, true
		}
	}
	return "", false, false
}

func (sc *scene) box(name string, port bool) (box geom.Rect, pos geom.Point, ok bool) {
	if port {
		p, found := sc.ports[name]
		if !found {
			return geom.Rect{}, geom.Point{}, false
		}
		return p.Box(), p.Pos, true
	}
	inst, found := sc.insts[name]
	if !found {
		return geom.Rect{}, geom.Point{}, false
	}
	return inst.Bounds, inst.Pos, true
}

// anchorBox returns the box of the pair element that is not the mover.
func (sc *scene) anchorBox(v geom.Violation, moverName string) (geom.Rect, bool) {
	name, kind := v.A, v.AKind
	if v.A == moverName {
		name, kind = v.B, v.BKind
	}
	box, _, ok := sc.box(name, kind == geom.ElementPort)
	return box, ok
}

// planOverlap separates two overlapping elements by shifting the mover to
// a MinGap clearance along whichever axis needs the shortest move.
func (sc *scene) planOverlap(v geom.Violation, p geom.Params) *ord.Edit {
	name, port, ok := sc.mover(v)
	if !ok {
		return nil
	}
	box, pos, ok := sc.box(name, port)
	if !ok {
		return nil
	}
	anchor, ok := sc.anchorBox(v, name)
	if !ok {
		return nil
	}

	shifts := []geom.Point{
		{X: anchor.MaxX + p.MinGap - box.MinX},
		{X: anchor.MinX - p.MinGap - box.MaxX},
		{Y: anchor.MaxY + p.MinGap - box.MinY},
		{Y: anchor.MinY - p.MinGap - box.MaxY},
	}
	best := shifts[0]
	for _, s := range shifts[1:] {
		if math.Abs(s.X+s.Y) < math.Abs(best.X+best.Y) {
			best = s
		}
	}
	return positionEdit(name, port, pos, best, v.Message)
}

// planClearance widens an undersized gap by pushing the mover further away
// along the violation axis.
func (sc *scene) planClearance(v geom.Violation, p geom.Params) *ord.Edit {
	name, port, ok := sc.mover(v)
	if !ok {
		return nil
	}
	box, pos, ok := sc.box(name, port)
	if !ok {
		return nil
	}
	anchor, ok := sc.anchorBox(v, name)
	if !ok {
		return nil
	}

	short := v.Need - v.Gap
	if short <= 0 {
		short = p.MinGap - v.Gap
	}
	var shift geom.Point
	if v.Axis == geom.AxisX {
		if box.MinX >= anchor.MaxX {
			shift.X = short
		} else {
			shift.X = -short
		}
	} else {
		if box.MinY >= anchor.MaxY {
			shift.Y = short
		} else {
			shift.Y = -short
		}
	}
	return positionEdit(name, port, pos, shift, v.Message)
}

// planBounds pulls an out-of-bounds element back inside the outline. An
// element larger than the outline itself has no feasible position.
func (sc *scene) planBounds(v geom.Violation) *ord.Edit {
	outline := sc.outline
	if outline.Empty() {
		return nil
	}
	port := v.AKind == geom.ElementPort
	box, pos, ok := sc.box(v.A, port)
	if !ok {
		return nil
	}
	if box.Width() > outline.Width() || box.Height() > outline.Height() {
		return nil
	}

	var shift geom.Point
	if box.MinX < outline.MinX {
		shift.X = outline.MinX - box.MinX
	} else if box.MaxX > outline.MaxX {
		shift.X = outline.MaxX - box.MaxX
	}
	if box.MinY < outline.MinY {
		shift.Y = outline.MinY - box.MinY
	} else if box.MaxY > outline.MaxY {
		shift.Y = outline.MaxY - box.MaxY
	}
	if shift.X == 0 && shift.Y == 0 {
		return nil
	}
	return positionEdit(v.A, port, pos, shift, v.Message)
}

// planAlignment snaps the lower-priority owner of a misaligned connection
// so the two points line up for a straight wire.
func (sc *scene) planAlignment(v geom.Violation) *ord.Edit {
	net, ok := sc.nets[v.Net]
	if !ok {
		return nil
	}
	a, ok := endpointByLabel(net, v.A)
	if !ok {
		return nil
	}
	b, ok := endpointByLabel(net, v.B)
	if !ok {
		return nil
	}

	target, movedEnd := a, b
	if b.Element == "" && a.Element != "" {
		target, movedEnd = b, a
	}

	var name string
	var port bool
	var pos geom.Point
	if movedEnd.Element != "" {
		inst, found := sc.insts[movedEnd.Element]
		if !found {
			return nil
		}
		name, pos = inst.Name, inst.Pos
	} else {
		p, found := sc.ports[movedEnd.Pin]
		if !found {
			return nil
		}
		name, port, pos = p.Name, true, p.Pos
	}

	var shift geom.Point
	if v.Axis == geom.AxisX {
		shift.X = target.Pos.X - movedEnd.Pos.X
	} else {
		shift.Y = target.Pos.Y - movedEnd.Pos.Y
	}
	if shift.X == 0 && shift.Y == 0 {
		return nil
	}
	return positionEdit(name, port, pos, shift, v.Message)
}

func positionEdit(name string, port bool, pos, shift geom.Point, reason string) *ord.Edit {
	return &ord.Edit{
		Kind:    ord.EditPosition,
		Element: name,
		Port:    port,
		X:       int(math.Round(pos.X + shift.X)),
		Y:       int(math.Round(pos.Y + shift.Y)),
		Reason:  reason,
	}
}

func endpointByLabel(net geom.Net, label string) (geom.Endpoint, bool) {
	for _, e := range net.Endpoints {
		if e.Label() == label {
			return e, true
		}
	}
	return geom.Endpoint{}, false
}
