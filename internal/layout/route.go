package layout

import (
	"math"

	"github.com/lucasnoah/ordpilot/internal/geom"
	"github.com/lucasnoah/ordpilot/internal/ord"
)

// planRoute handles a net route cutting through an instance body. Moving
// the blocker or the net's endpoints risks a cascade of new violations, so
// the fix switches the net to manual routing and records an orthogonal
// detour around the blocker for reference. The edit targets the port
// declaration when the net is a port net, otherwise the net declaration.
func (sc *scene) planRoute(v geom.Violation, p geom.Params) *ord.Edit {
	net, ok := sc.nets[v.Net]
	if !ok || len(net.Route) < 2 {
		return nil
	}
	blocker, ok := sc.insts[v.B]
	if !ok {
		return nil
	}

	_, isPort := sc.ports[net.Name]
	return &ord.Edit{
		Kind:    ord.EditRoute,
		Element: net.Name,
		Port:    isPort,
		Detour:  detour(net.Route[0], net.Route[len(net.Route)-1], blocker.Bounds, p.MinGap),
		Reason:  v.Message,
	}
}

// detour proposes an orthogonal path from a to b that skirts the blocker
// with a MinGap margin. Mostly-horizontal runs go around above or below,
// vertical ones around a side; the nearer lane wins.
func detour(a, b geom.Point, blocker geom.Rect, margin float64) []geom.Point {
	if math.Abs(b.X-a.X) >= math.Abs(b.Y-a.Y) {
		top := blocker.MaxY + margin
		bottom := blocker.MinY - margin
		lane := top
		if math.Abs(a.Y-bottom)+math.Abs(b.Y-bottom) < math.Abs(a.Y-top)+math.Abs(b.Y-top) {
			lane = bottom
		}
		return []geom.Point{{X: a.X, Y: lane}, {X: b.X, Y: lane}}
	}
	right := blocker.MaxX + margin
	left := blocker.MinX - margin
	lane := right
	if math.Abs(a.X-left)+math.Abs(b.X-left) < math.Abs(a.X-right)+math.Abs(b.X-right) {
		lane = left
	}
	return []geom.Point{{X: lane, Y: a.Y}, {X: lane, Y: b.Y}}
}
