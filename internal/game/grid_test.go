package game

import "testing"

func TestReceiveShot(t *testing.T) {
	g := NewGrid()
	g.Cells[3][2] = CellShip

	if got := g.ReceiveShot(2, 3); got != OutcomeHit {
		t.Fatalf("shot on ship cell: got %v, want %v", got, OutcomeHit)
	}
	if g.Cells[3][2] != CellHit {
		t.Fatalf("cell after hit: got %v, want %v", g.Cells[3][2], CellHit)
	}

	if got := g.ReceiveShot(2, 3); got != OutcomeRepeat {
		t.Fatalf("repeat shot: got %v, want %v", got, OutcomeRepeat)
	}

	if got := g.ReceiveShot(0, 0); got != OutcomeMiss {
		t.Fatalf("shot on empty cell: got %v, want %v", got, OutcomeMiss)
	}
	if g.Cells[0][0] != CellMiss {
		t.Fatalf("cell after miss: got %v, want %v", g.Cells[0][0], CellMiss)
	}
}

func TestMaskedRowsHidesShips(t *testing.T) {
	g := NewGrid()
	g.Cells[0][0] = CellShip
	g.Cells[0][1] = CellHit
	g.Cells[0][2] = CellMiss

	rows := g.MaskedRows()
	if rows[0][0] != string(CellEmpty) {
		t.Fatalf("un-hit ship cell leaked: got %q", rows[0][0])
	}
	if rows[0][1] != string(CellHit) || rows[0][2] != string(CellMiss) {
		t.Fatalf("hit/miss cells should stay visible, got %q %q", rows[0][1], rows[0][2])
	}

	full := g.Rows()
	if full[0][0] != string(CellShip) {
		t.Fatalf("owner view should reveal ships, got %q", full[0][0])
	}
}

func TestInBounds(t *testing.T) {
	cases := []struct {
		x, y int
		want bool
	}{
		{0, 0, true},
		{9, 9, true},
		{10, 0, false},
		{0, 10, false},
		{-1, 5, false},
	}
	for _, tc := range cases {
		if got := InBounds(tc.x, tc.y); got != tc.want {
			t.Fatalf("InBounds(%d,%d): got %v, want %v", tc.x, tc.y, got, tc.want)
		}
	}
}
