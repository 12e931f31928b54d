package geom

import (
	"strings"
	"testing"
)

func inst(name string, minX, minY, maxX, maxY float64) Instance {
	return Instance{
		Name:   name,
		Pos:    Point{X: minX, Y: minY},
		Bounds: Rect{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY},
	}
}

func TestAxisGap(t *testing.T) {
	tests := []struct {
		name                       string
		aLow, aHigh, bLow, bHigh   float64
		want                       float64
	}{
		{"separated", 0, 5, 8, 13, 3},
		{"separated reversed", 8, 13, 0, 5, 3},
		{"touching", 0, 5, 5, 10, 0},
		{"overlapping", 0, 5, 3, 8, 0},
		{"contained", 0, 10, 2, 4, 0},
		{"one unit apart", 0, 5, 6, 11, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := axisGap(tt.aLow, tt.aHigh, tt.bLow, tt.bHigh)
			if got != tt.want {
				t.Errorf("axisGap(%v, %v, %v, %v) = %v, want %v",
					tt.aLow, tt.aHigh, tt.bLow, tt.bHigh, got, tt.want)
			}
		})
	}
}

func TestCheckSpacingOverlap(t *testing.T) {
	s := &Schematic{
		Cell: "Inverter",
		Instances: []Instance{
			inst("pd", 0, 0, 5, 5),
			inst("pu", 3, 3, 8, 8),
		},
	}
	violations := CheckSpacing(s, DefaultParams())
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(violations), violations)
	}
	v := violations[0]
	if v.Kind != KindOverlap {
		t.Errorf("Kind = %q, want %q", v.Kind, KindOverlap)
	}
	if v.Message != "pd and pu: bounding boxes overlap or touch" {
		t.Errorf("Message = %q", v.Message)
	}
}

func TestCheckSpacingTouchingCountsAsOverlap(t *testing.T) {
	s := &Schematic{
		Cell: "Inverter",
		Instances: []Instance{
			inst("pd", 0, 0, 5, 5),
			inst("pu", 5, 0, 10, 5),
		},
	}
	violations := CheckSpacing(s, DefaultParams())
	if len(violations) != 1 || violations[0].Kind != KindOverlap {
		t.Fatalf("touching boxes should be an overlap violation, got %v", violations)
	}
}

func TestCheckSpacingHorizontalGap(t *testing.T) {
	s := &Schematic{
		Cell: "Inverter",
		Instances: []Instance{
			inst("pd", 0, 0, 5, 5),
			inst("pu", 6, 0, 11, 5),
		},
	}
	violations := CheckSpacing(s, DefaultParams())
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(violations), violations)
	}
	v := violations[0]
	if v.Kind != KindClearance || v.Axis != AxisX {
		t.Errorf("Kind = %q, Axis = %q, want clearance on x", v.Kind, v.Axis)
	}
	if v.Gap != 1 {
		t.Errorf("Gap = %v, want 1", v.Gap)
	}
	want := "pd at (0, 0) and pu at (6, 0): 1-unit horizontal gap (need 2)"
	if v.Message != want {
		t.Errorf("Message = %q, want %q", v.Message, want)
	}
}

func TestCheckSpacingVerticalGap(t *testing.T) {
	s := &Schematic{
		Cell: "Inverter",
		Instances: []Instance{
			inst("pd", 0, 0, 5, 5),
			inst("pu", 0, 6, 5, 11),
		},
	}
	violations := CheckSpacing(s, DefaultParams())
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(violations), violations)
	}
	if !strings.Contains(violations[0].Message, "vertical gap") {
		t.Errorf("Message = %q, want vertical gap", violations[0].Message)
	}
}

func TestCheckSpacingDiagonalExempt(t *testing.T) {
	s := &Schematic{
		Cell: "Inverter",
		Instances: []Instance{
			inst("pd", 0, 0, 5, 5),
			inst("pu", 6, 6, 11, 11),
		},
	}
	if violations := CheckSpacing(s, DefaultParams()); len(violations) != 0 {
		t.Errorf("diagonal neighbours should pass, got %v", violations)
	}
}

func TestCheckSpacingSufficientGapPasses(t *testing.T) {
	s := &Schematic{
		Cell: "Inverter",
		Instances: []Instance{
			inst("pd", 0, 0, 5, 5),
			inst("pu", 7, 0, 12, 5),
		},
	}
	if violations := CheckSpacing(s, DefaultParams()); len(violations) != 0 {
		t.Errorf("2-unit gap should pass, got %v", violations)
	}
}

func TestCheckSpacingPortPortExempt(t *testing.T) {
	s := &Schematic{
		Cell: "Inverter",
		Ports: []Port{
			{Name: "inp", Pos: Point{X: 0, Y: 0}},
			{Name: "out", Pos: Point{X: 1, Y: 0}},
		},
	}
	if violations := CheckSpacing(s, DefaultParams()); len(violations) != 0 {
		t.Errorf("port-port pairs are exempt, got %v", violations)
	}
}

func TestCheckSpacingInstancePortClearance(t *testing.T) {
	s := &Schematic{
		Cell:      "Inverter",
		Instances: []Instance{inst("pd", 0, 0, 5, 5)},
		Ports:     []Port{{Name: "vdd", Pos: Point{X: 6, Y: 2}}},
	}
	violations := CheckSpacing(s, DefaultParams())
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(violations), violations)
	}
	if !strings.Contains(violations[0].Message, "port vdd") {
		t.Errorf("Message = %q, want port label", violations[0].Message)
	}
}

func TestCheckSpacingReportsAllViolations(t *testing.T) {
	s := &Schematic{
		Cell: "DiffAmp",
		Instances: []Instance{
			inst("m1", 0, 0, 5, 5),
			inst("m2", 4, 0, 9, 5),  // overlaps m1
			inst("m3", 10, 0, 15, 5), // 1-unit gap to m2
		},
	}
	violations := CheckSpacing(s, DefaultParams())
	if len(violations) != 2 {
		t.Fatalf("got %d violations, want 2: %v", len(violations), violations)
	}
	if violations[0].Kind != KindOverlap {
		t.Errorf("first violation = %q, want overlap", violations[0].Kind)
	}
	if violations[1].Kind != KindClearance {
		t.Errorf("second violation = %q, want clearance", violations[1].Kind)
	}
}

func TestCheckSpacingOutOfBounds(t *testing.T) {
	s := &Schematic{
		Cell:    "Inverter",
		Outline: Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10},
		Instances: []Instance{
			inst("pd", 7, 2, 12, 7), // extends past MaxX
		},
	}
	violations := CheckSpacing(s, DefaultParams())
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(violations), violations)
	}
	v := violations[0]
	if v.Kind != KindOutOfBounds || v.A != "pd" {
		t.Errorf("violation = %+v, want out_of_bounds for pd", v)
	}
	if !strings.Contains(v.Message, "outside the outline") {
		t.Errorf("Message = %q", v.Message)
	}
}

func TestCheckSpacingNoOutlineSkipsBoundsCheck(t *testing.T) {
	s := &Schematic{
		Cell:      "Inverter",
		Instances: []Instance{inst("pd", -100, -100, -95, -95)},
	}
	if violations := CheckSpacing(s, DefaultParams()); len(violations) != 0 {
		t.Errorf("empty outline should skip bounds check, got %v", violations)
	}
}

func TestCheckSpacingMisaligned(t *testing.T) {
	s := &Schematic{
		Cell: "Inverter",
		Nets: []Net{{
			Name: "out",
			Endpoints: []Endpoint{
				{Element: "pd", Pin: "d", Pos: Point{X: 5, Y: 10}},
				{Pin: "out", Pos: Point{X: 6, Y: 20}},
			},
		}},
	}
	violations := CheckSpacing(s, DefaultParams())
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(violations), violations)
	}
	v := violations[0]
	if v.Kind != KindMisaligned || v.Axis != AxisX || v.Gap != 1 {
		t.Errorf("violation = %+v, want misaligned by 1 on x", v)
	}
	if v.A != "pd.d" || v.B != "port out" {
		t.Errorf("endpoint labels = %q, %q", v.A, v.B)
	}
}

func TestCheckSpacingAlignedEndpointsPass(t *testing.T) {
	s := &Schematic{
		Cell: "Inverter",
		Nets: []Net{{
			Name: "out",
			Endpoints: []Endpoint{
				{Element: "pd", Pin: "d", Pos: Point{X: 5, Y: 10}},
				{Pin: "out", Pos: Point{X: 5, Y: 20}},
			},
		}},
	}
	if violations := CheckSpacing(s, DefaultParams()); len(violations) != 0 {
		t.Errorf("exactly aligned endpoints should pass, got %v", violations)
	}
}

func TestCheckSpacingLargeOffsetNotMisaligned(t *testing.T) {
	s := &Schematic{
		Cell: "Inverter",
		Nets: []Net{{
			Name: "out",
			Endpoints: []Endpoint{
				{Element: "pd", Pin: "d", Pos: Point{X: 5, Y: 10}},
				{Pin: "out", Pos: Point{X: 9, Y: 20}},
			},
		}},
	}
	if violations := CheckSpacing(s, DefaultParams()); len(violations) != 0 {
		t.Errorf("4-unit offset is a deliberate layout, got %v", violations)
	}
}

func TestCheckSpacingRouteCrossing(t *testing.T) {
	s := &Schematic{
		Cell: "Mirror",
		Instances: []Instance{
			inst("m1", 0, 0, 5, 5),
			inst("m2", 20, 0, 25, 5),
			inst("blocker", 8, 0, 13, 5),
		},
		Nets: []Net{{
			Name:   "bias",
			Routed: true,
			Endpoints: []Endpoint{
				{Element: "m1", Pin: "g", Pos: Point{X: 5, Y: 2}},
				{Element: "m2", Pin: "g", Pos: Point{X: 20, Y: 2}},
			},
			Route: []Point{{X: 5, Y: 2}, {X: 20, Y: 2}},
		}},
	}
	violations := CheckSpacing(s, DefaultParams())
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(violations), violations)
	}
	v := violations[0]
	if v.Kind != KindRoute || v.B != "blocker" {
		t.Errorf("violation = %+v, want route crossing blocker", v)
	}
	if v.Message != "net bias: route crosses blocker" {
		t.Errorf("Message = %q", v.Message)
	}
}

func TestCheckSpacingRouteEndpointOwnerExempt(t *testing.T) {
	s := &Schematic{
		Cell: "Mirror",
		Instances: []Instance{
			inst("m1", 0, 0, 5, 5),
			inst("m2", 20, 0, 25, 5),
		},
		Nets: []Net{{
			Name:   "bias",
			Routed: true,
			Endpoints: []Endpoint{
				{Element: "m1", Pin: "g", Pos: Point{X: 5, Y: 2}},
				{Element: "m2", Pin: "g", Pos: Point{X: 20, Y: 2}},
			},
			Route: []Point{{X: 5, Y: 2}, {X: 20, Y: 2}},
		}},
	}
	if violations := CheckSpacing(s, DefaultParams()); len(violations) != 0 {
		t.Errorf("route endpoints' own instances are exempt, got %v", violations)
	}
}

func TestCheckSpacingManualRouteSkipped(t *testing.T) {
	s := &Schematic{
		Cell:      "Mirror",
		Instances: []Instance{inst("blocker", 8, 0, 13, 5)},
		Nets: []Net{{
			Name:   "bias",
			Routed: false,
			Route:  []Point{{X: 5, Y: 2}, {X: 20, Y: 2}},
		}},
	}
	if violations := CheckSpacing(s, DefaultParams()); len(violations) != 0 {
		t.Errorf("manually routed nets are not checked, got %v", violations)
	}
}

func TestSegmentCrossesRect(t *testing.T) {
	r := Rect{MinX: 8, MinY: 0, MaxX: 13, MaxY: 5}
	tests := []struct {
		name string
		p, q Point
		want bool
	}{
		{"horizontal through", Point{5, 2}, Point{20, 2}, true},
		{"horizontal above", Point{5, 6}, Point{20, 6}, false},
		{"horizontal on edge", Point{5, 5}, Point{20, 5}, false},
		{"vertical through", Point{10, -2}, Point{10, 8}, true},
		{"vertical beside", Point{14, -2}, Point{14, 8}, false},
		{"short of rect", Point{0, 2}, Point{7, 2}, false},
		{"diagonal ignored", Point{5, -1}, Point{20, 6}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := segmentCrossesRect(tt.p, tt.q, r); got != tt.want {
				t.Errorf("segmentCrossesRect(%v, %v) = %v, want %v", tt.p, tt.q, got, tt.want)
			}
		})
	}
}

func TestDecodeSchematic(t *testing.T) {
	data := `{
		"cell": "Inverter",
		"outline": {"min_x": 0, "min_y": 0, "max_x": 20, "max_y": 16},
		"instances": [{"name": "pd", "pos": {"x": 6, "y": 2}, "bounds": {"min_x": 6, "min_y": 2, "max_x": 11, "max_y": 7}}],
		"ports": [{"name": "vdd", "pos": {"x": 2, "y": 14}, "align": "South"}]
	}`
	s, err := DecodeSchematic(strings.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeSchematic() error: %v", err)
	}
	if s.Cell != "Inverter" {
		t.Errorf("Cell = %q", s.Cell)
	}
	if len(s.Instances) != 1 || s.Instances[0].Bounds.MaxX != 11 {
		t.Errorf("Instances = %+v", s.Instances)
	}
	if s.Ports[0].Align != "South" {
		t.Errorf("Align = %q", s.Ports[0].Align)
	}
}

func TestDecodeSchematicMissingCell(t *testing.T) {
	if _, err := DecodeSchematic(strings.NewReader(`{"instances": []}`)); err == nil {
		t.Error("expected error for geometry without a cell name")
	}
}

func TestDecodeSchematicBadJSON(t *testing.T) {
	if _, err := DecodeSchematic(strings.NewReader(`{not json`)); err == nil {
		t.Error("expected error for malformed geometry JSON")
	}
}
