package layout

import (
	"errors"
	"testing"

	"github.com/lucasnoah/ordpilot/internal/geom"
	"github.com/lucasnoah/ordpilot/internal/ord"
	"github.com/lucasnoah/ordpilot/internal/stage"
)

func inst(name string, x, y, w, h float64) geom.Instance {
	return geom.Instance{
		Name:   name,
		Pos:    geom.Point{X: x, Y: y},
		Bounds: geom.Rect{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h},
	}
}

// spacingFailure runs the real checker so the planner sees violations in
// their production shape and order.
func spacingFailure(t *testing.T, s *geom.Schematic, p geom.Params) *stage.Failure {
	t.Helper()
	vs := geom.CheckSpacing(s, p)
	if len(vs) == 0 {
		t.Fatal("fixture produced no violations")
	}
	return &stage.Failure{
		Stage:      stage.Spacing,
		Code:       stage.CodeSpacingViolation,
		Message:    "spacing check failed",
		Violations: vs,
	}
}

func TestPropose_OverlapMovesLaterInstanceCheapestAxis(t *testing.T) {
	s := &geom.Schematic{
		Cell:      "Inverter",
		Instances: []geom.Instance{inst("pd", 0, 0, 5, 5), inst("pu", 4, 0, 5, 5)},
	}
	p := geom.DefaultParams()

	edits, err := Propose(s, spacingFailure(t, s, p), p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	e := edits[0]
	if e.Kind != ord.EditPosition || e.Element != "pu" || e.Port {
		t.Fatalf("edit = %+v, want instance position edit for pu", e)
	}
	if e.X != 7 || e.Y != 0 {
		t.Errorf("new pos = (%d, %d), want (7, 0)", e.X, e.Y)
	}
	if e.Reason == "" {
		t.Error("edit carries no reason")
	}
}

func TestPropose_ClearanceShiftsAlongViolationAxis(t *testing.T) {
	s := &geom.Schematic{
		Cell:      "Inverter",
		Instances: []geom.Instance{inst("pd", 0, 0, 5, 5), inst("pu", 6, 0, 5, 5)},
	}
	p := geom.DefaultParams()

	edits, err := Propose(s, spacingFailure(t, s, p), p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	e := edits[0]
	if e.Element != "pu" || e.X != 7 || e.Y != 0 {
		t.Errorf("edit = %+v, want pu at (7, 0)", e)
	}
}

func TestPropose_PortStaysInstanceMoves(t *testing.T) {
	s := &geom.Schematic{
		Cell:      "Inverter",
		Instances: []geom.Instance{inst("pd", 4, 0, 5, 5)},
		Ports:     []geom.Port{{Name: "vdd", Pos: geom.Point{X: 10, Y: 2}}},
	}
	p := geom.DefaultParams()

	edits, err := Propose(s, spacingFailure(t, s, p), p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	e := edits[0]
	if e.Element != "pd" || e.Port {
		t.Fatalf("edit = %+v, want pd to move, not the port", e)
	}
	if e.X != 3 || e.Y != 0 {
		t.Errorf("new pos = (%d, %d), want (3, 0)", e.X, e.Y)
	}
}

func TestPropose_OutOfBoundsClampsIntoOutline(t *testing.T) {
	s := &geom.Schematic{
		Cell:      "Amp",
		Outline:   geom.Rect{MinX: 0, MinY: 0, MaxX: 20, MaxY: 20},
		Instances: []geom.Instance{inst("m1", 18, 4, 5, 5)},
	}
	p := geom.DefaultParams()

	edits, err := Propose(s, spacingFailure(t, s, p), p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	e := edits[0]
	if e.Element != "m1" || e.X != 15 || e.Y != 4 {
		t.Errorf("edit = %+v, want m1 at (15, 4)", e)
	}
}

func TestPropose_ElementLargerThanOutlineIsInfeasible(t *testing.T) {
	s := &geom.Schematic{
		Cell:      "Amp",
		Outline:   geom.Rect{MinX: 0, MinY: 0, MaxX: 4, MaxY: 4},
		Instances: []geom.Instance{inst("m1", 0, 0, 10, 10)},
	}
	p := geom.DefaultParams()

	_, err := Propose(s, spacingFailure(t, s, p), p)
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("err = %v, want ErrInfeasible", err)
	}
}

func TestPropose_MisalignedSnapsInstanceToPort(t *testing.T) {
	s := &geom.Schematic{
		Cell:      "Inverter",
		Instances: []geom.Instance{inst("pd", 0, 0, 5, 5)},
		Ports:     []geom.Port{{Name: "out", Pos: geom.Point{X: 8, Y: 4}}},
		Nets: []geom.Net{{
			Name: "out",
			Endpoints: []geom.Endpoint{
				{Element: "pd", Pin: "d", Pos: geom.Point{X: 5, Y: 4}},
				{Pin: "out", Pos: geom.Point{X: 8, Y: 5}},
			},
		}},
	}
	p := geom.DefaultParams()

	edits, err := Propose(s, spacingFailure(t, s, p), p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	e := edits[0]
	if e.Element != "pd" || e.Port {
		t.Fatalf("edit = %+v, want pd to snap", e)
	}
	if e.X != 0 || e.Y != 1 {
		t.Errorf("new pos = (%d, %d), want (0, 1)", e.X, e.Y)
	}
}

func TestPropose_MisalignedPortsMovesSecondPort(t *testing.T) {
	s := &geom.Schematic{
		Cell: "Bias",
		Ports: []geom.Port{
			{Name: "a", Pos: geom.Point{X: 2, Y: 6}},
			{Name: "b", Pos: geom.Point{X: 3, Y: 6}},
		},
		Nets: []geom.Net{{
			Name: "bias",
			Endpoints: []geom.Endpoint{
				{Pin: "a", Pos: geom.Point{X: 2, Y: 6}},
				{Pin: "b", Pos: geom.Point{X: 3, Y: 6}},
			},
		}},
	}
	p := geom.DefaultParams()

	edits, err := Propose(s, spacingFailure(t, s, p), p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	e := edits[0]
	if e.Element != "b" || !e.Port {
		t.Fatalf("edit = %+v, want port b to move", e)
	}
	if e.X != 2 || e.Y != 6 {
		t.Errorf("new pos = (%d, %d), want (2, 6)", e.X, e.Y)
	}
}

func TestPropose_RouteCrossingDisablesRouting(t *testing.T) {
	s := &geom.Schematic{
		Cell: "Amp",
		Instances: []geom.Instance{
			inst("pd", 0, 8, 2, 4),
			inst("pe", 18, 8, 2, 4),
			inst("blk", 8, 8, 4, 5),
		},
		Nets: []geom.Net{{
			Name: "bias",
			Endpoints: []geom.Endpoint{
				{Element: "pd", Pin: "a", Pos: geom.Point{X: 0, Y: 10}},
				{Element: "pe", Pin: "b", Pos: geom.Point{X: 20, Y: 10}},
			},
			Route:  []geom.Point{{X: 0, Y: 10}, {X: 20, Y: 10}},
			Routed: true,
		}},
	}
	p := geom.DefaultParams()

	edits, err := Propose(s, spacingFailure(t, s, p), p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	e := edits[0]
	if e.Kind != ord.EditRoute || e.Element != "bias" || e.Port {
		t.Fatalf("edit = %+v, want net route edit for bias", e)
	}
	if len(e.Detour) != 2 {
		t.Fatalf("detour = %v, want two lane points", e.Detour)
	}
	// The bottom lane (y = 8 - 2) is closer to the endpoints than the top.
	if e.Detour[0].Y != 6 || e.Detour[1].Y != 6 {
		t.Errorf("detour = %v, want lane at y=6", e.Detour)
	}
	if e.Detour[0].X != 0 || e.Detour[1].X != 20 {
		t.Errorf("detour = %v, want lane spanning x=0..20", e.Detour)
	}
}

func TestPropose_RouteOnPortNetUsesPortForm(t *testing.T) {
	s := &geom.Schematic{
		Cell: "Amp",
		Instances: []geom.Instance{
			inst("pd", 0, 8, 2, 4),
			inst("blk", 8, 8, 4, 5),
		},
		Ports: []geom.Port{{Name: "vdd", Pos: geom.Point{X: 20, Y: 10}}},
		Nets: []geom.Net{{
			Name: "vdd",
			Endpoints: []geom.Endpoint{
				{Element: "pd", Pin: "a", Pos: geom.Point{X: 0, Y: 10}},
				{Pin: "vdd", Pos: geom.Point{X: 20, Y: 10}},
			},
			Route:  []geom.Point{{X: 0, Y: 10}, {X: 20, Y: 10}},
			Routed: true,
		}},
	}
	p := geom.DefaultParams()

	edits, err := Propose(s, spacingFailure(t, s, p), p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(edits))
	}
	if !edits[0].Port || edits[0].Element != "vdd" {
		t.Errorf("edit = %+v, want port-form route edit", edits[0])
	}
}

func TestPropose_OneEditPerElementPerRound(t *testing.T) {
	s := &geom.Schematic{
		Cell:      "Inverter",
		Outline:   geom.Rect{MinX: 0, MinY: 0, MaxX: 8, MaxY: 5},
		Instances: []geom.Instance{inst("a", 0, 0, 5, 5), inst("b", 4, 0, 5, 5)},
	}
	p := geom.DefaultParams()
	f := spacingFailure(t, s, p)
	if len(f.Violations) < 2 {
		t.Fatalf("violations = %d, want overlap plus out-of-bounds", len(f.Violations))
	}

	edits, err := Propose(s, f, p)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("edits = %d, want the first plan only", len(edits))
	}
	if edits[0].Element != "b" || edits[0].X != 7 {
		t.Errorf("edit = %+v, want overlap plan for b at x=7", edits[0])
	}
}

func TestPropose_UnknownElementsAreInfeasible(t *testing.T) {
	s := &geom.Schematic{Cell: "Inverter", Instances: []geom.Instance{inst("pd", 0, 0, 5, 5)}}
	f := &stage.Failure{
		Stage: stage.Spacing,
		Code:  stage.CodeSpacingViolation,
		Violations: []geom.Violation{{
			Kind:  geom.KindOverlap,
			A:     "ghost",
			AKind: geom.ElementInstance,
			B:     "phantom",
			BKind: geom.ElementInstance,
		}},
	}

	_, err := Propose(s, f, geom.DefaultParams())
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("err = %v, want ErrInfeasible", err)
	}
}

func TestPropose_RejectsNonSpacingFailure(t *testing.T) {
	s := &geom.Schematic{Cell: "Inverter"}
	f := &stage.Failure{Stage: stage.Execute, Code: stage.CodeExecFailure}

	_, err := Propose(s, f, geom.DefaultParams())
	if err == nil || errors.Is(err, ErrInfeasible) {
		t.Fatalf("err = %v, want non-spacing rejection", err)
	}
}

func TestPropose_NeedsGeometry(t *testing.T) {
	f := &stage.Failure{
		Stage:      stage.Spacing,
		Code:       stage.CodeSpacingViolation,
		Violations: []geom.Violation{{Kind: geom.KindOverlap, A: "a", B: "b"}},
	}
	if _, err := Propose(nil, f, geom.DefaultParams()); err == nil {
		t.Fatal("expected error for missing geometry")
	}
}

func TestPropose_EmptyViolationsAreInfeasible(t *testing.T) {
	s := &geom.Schematic{Cell: "Inverter"}
	f := &stage.Failure{Stage: stage.Spacing, Code: stage.CodeSpacingViolation}

	_, err := Propose(s, f, geom.DefaultParams())
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("err = %v, want ErrInfeasible", err)
	}
}

func TestDetour_VerticalRouteGoesAroundSide(t *testing.T) {
	a := geom.Point{X: 10, Y: 0}
	b := geom.Point{X: 10, Y: 20}
	blocker := geom.Rect{MinX: 8, MinY: 8, MaxX: 12, MaxY: 13}

	d := detour(a, b, blocker, 2)
	if len(d) != 2 {
		t.Fatalf("detour = %v, want two points", d)
	}
	// Both lanes are equidistant from x=10; the right lane is the default.
	if d[0].X != 14 || d[1].X != 14 {
		t.Errorf("detour = %v, want lane at x=14", d)
	}
	if d[0].Y != 0 || d[1].Y != 20 {
		t.Errorf("detour = %v, want lane spanning y=0..20", d)
	}
}
