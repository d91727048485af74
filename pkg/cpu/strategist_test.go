package cpu

import (
	"testing"

	"mnk-server/pkg/board"
	"mnk-server/pkg/rules"
)

func fiveRuleSet() rules.RuleSet {
	return rules.RuleSet{Name: "five", NumPlayers: 2, M: 5, N: 5, K: 4, P: 1, Q: 1}
}

// TestForcedBlock follows spec scenario 5: opponent holds three in a row
// with both ends open; the CPU must take one of the two block cells.
func TestForcedBlock(t *testing.T) {
	rs := fiveRuleSet()
	b := board.New(5, 5)
	b.Set(1, 1, 2)
	b.Set(2, 1, 2)
	b.Set(3, 1, 2)

	s := New()
	mv := s.Decide(b, rs, 1, 6)

	want := map[Move]bool{{X: 0, Y: 1}: true, {X: 4, Y: 1}: true}
	if !want[mv] {
		t.Fatalf("expected CPU to block at (0,1) or (4,1), got %+v", mv)
	}
}

// TestForcedWin follows spec scenario 6: the CPU holds three in a row with
// an open extension and must take the winning move.
func TestForcedWin(t *testing.T) {
	rs := fiveRuleSet()
	b := board.New(5, 5)
	b.Set(0, 0, 1)
	b.Set(1, 0, 1)
	b.Set(2, 0, 1)

	s := New()
	mv := s.Decide(b, rs, 1, 6)

	if mv != (Move{X: 3, Y: 0}) {
		t.Fatalf("expected CPU to win at (3,0), got %+v", mv)
	}
}

// TestNeverMissesAnAvailableBlock is a coarser property check across a
// handful of boards: whenever the opponent has an immediate winning move
// and a block exists, the CPU takes one.
func TestNeverMissesAnAvailableBlock(t *testing.T) {
	rs := fiveRuleSet()

	boards := []struct {
		stones []Move
		blocks []Move
	}{
		{
			stones: []Move{{1, 1}, {2, 1}, {3, 1}},
			blocks: []Move{{0, 1}, {4, 1}},
		},
		{
			stones: []Move{{0, 2}, {1, 2}, {2, 2}},
			blocks: []Move{{3, 2}},
		},
	}

	for _, tc := range boards {
		b := board.New(5, 5)
		for _, st := range tc.stones {
			b.Set(st.X, st.Y, 2)
		}
		s := New()
		mv := s.Decide(b, rs, 1, 6)
		if !containsMove(tc.blocks, mv) {
			t.Errorf("stones %+v: expected block in %+v, got %+v", tc.stones, tc.blocks, mv)
		}
	}
}

func TestDecideNeverReturnsOccupiedCell(t *testing.T) {
	rs := fiveRuleSet()
	b := board.New(5, 5)
	b.Set(0, 0, 1)
	b.Set(1, 0, 2)
	b.Set(2, 2, 1)

	s := New()
	mv := s.Decide(b, rs, 2, 3)
	if b.Get(mv.X, mv.Y) != 0 {
		t.Fatalf("CPU chose occupied cell %+v", mv)
	}
}

func TestCentreFallbackOnEmptyBoard(t *testing.T) {
	rs := fiveRuleSet()
	b := board.New(5, 5)

	s := New()
	mv := s.Decide(b, rs, 1, 0)
	if mv != (Move{X: 2, Y: 2}) {
		t.Fatalf("expected centre fallback (2,2), got %+v", mv)
	}
}

func TestMergeCandidatesCombinesIntersections(t *testing.T) {
	in := []candidate{
		{move: Move{1, 1}, score: 10},
		{move: Move{1, 1}, score: 4},
		{move: Move{2, 2}, score: 6},
	}
	out := mergeCandidates(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 merged candidates, got %d", len(out))
	}
	for _, c := range out {
		if c.move == (Move{1, 1}) && c.score != 12 {
			t.Errorf("expected merged score 12 (10 + 4/2), got %v", c.score)
		}
	}
}
