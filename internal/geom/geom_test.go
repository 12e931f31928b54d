package geom

import "testing"

func TestRectDimensions(t *testing.T) {
	r := Rect{MinX: 2, MinY: 3, MaxX: 7, MaxY: 11}
	if r.Width() != 5 {
		t.Errorf("Width() = %v, want 5", r.Width())
	}
	if r.Height() != 8 {
		t.Errorf("Height() = %v, want 8", r.Height())
	}
	if r.Empty() {
		t.Error("Empty() = true for a 5x8 rect")
	}
	if !(Rect{}).Empty() {
		t.Error("Empty() = false for the zero rect")
	}
}

func TestRectContains(t *testing.T) {
	outer := Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	tests := []struct {
		name  string
		inner Rect
		want  bool
	}{
		{"fully inside", Rect{2, 2, 8, 8}, true},
		{"touching boundary", Rect{0, 0, 10, 10}, true},
		{"spills right", Rect{5, 5, 12, 8}, false},
		{"spills below", Rect{2, -1, 8, 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outer.Contains(tt.inner); got != tt.want {
				t.Errorf("Contains(%+v) = %v, want %v", tt.inner, got, tt.want)
			}
		})
	}
}

func TestRectTranslate(t *testing.T) {
	r := Rect{MinX: 1, MinY: 2, MaxX: 4, MaxY: 6}
	got := r.Translate(3, -2)
	want := Rect{MinX: 4, MinY: 0, MaxX: 7, MaxY: 4}
	if got != want {
		t.Errorf("Translate(3, -2) = %+v, want %+v", got, want)
	}
}

func TestPortBox(t *testing.T) {
	p := Port{Name: "vdd", Pos: Point{X: 3, Y: 14}}
	got := p.Box()
	want := Rect{MinX: 3, MinY: 14, MaxX: 4, MaxY: 15}
	if got != want {
		t.Errorf("Box() = %+v, want %+v", got, want)
	}
}

func TestEndpointLabel(t *testing.T) {
	pin := Endpoint{Element: "pd", Pin: "d"}
	if pin.Label() != "pd.d" {
		t.Errorf("Label() = %q, want %q", pin.Label(), "pd.d")
	}
	port := Endpoint{Pin: "out"}
	if port.Label() != "port out" {
		t.Errorf("Label() = %q, want %q", port.Label(), "port out")
	}
}

func TestFmtNum(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2, "2"},
		{-3, "-3"},
		{0, "0"},
		{1.5, "1.5"},
	}
	for _, tt := range tests {
		if got := fmtNum(tt.in); got != tt.want {
			t.Errorf("fmtNum(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
