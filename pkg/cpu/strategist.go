// Package cpu implements the one-ply threat-analysis heuristic opponent: it
// scans every maximal monochrome run on the four axes, computes expand
// points on both ends, and chooses a move by forced-move rules first, then a
// scored heuristic, with a centre-biased fallback.
package cpu

import (
	"fmt"
	"math/rand"
	"sort"

	"mnk-server/pkg/board"
	"mnk-server/pkg/rules"
)

// ErrNoSeat describes a strategist invocation without an associated seat.
// No function in this package returns it.
var ErrNoSeat = fmt.Errorf("cpu: strategist invoked without an associated seat")

// DefaultCleverness is the tie-break jitter bound used when the caller does
// not supply one (see spec §9 Open Questions).
const DefaultCleverness = 10.0

// Move is a chosen board coordinate.
type Move struct {
	X, Y int
}

// Strategist is a stateless one-ply heuristic engine. It holds only
// per-call scratch state; a single value is safe to reuse across calls.
type Strategist struct {
	// Cleverness governs how strictly moves are ordered by score: ties (and
	// near-ties within this bound) are broken randomly. Higher is stricter.
	Cleverness float64
}

// New returns a Strategist with the default cleverness.
func New() *Strategist { return &Strategist{Cleverness: DefaultCleverness} }

// candidate is a scored move awaiting merge/sort, or a queued must-block.
type candidate struct {
	move  Move
	score float64
}

type scan struct {
	b          *board.Board
	rs         rules.RuleSet
	seat       byte
	turnsLeft  int
	candidates []candidate
	blocks     []Move
}

// direction describes one of the four axes walked by the scan.
type direction struct{ dx, dy int }

// Decide chooses exactly one legal move for seat on the given board. turn is
// the zero-based turn counter used to compute TurnsLeft for seat's own
// budget. Panics are never used for control flow here: callers always get
// back a single (x, y). When the board has no empty cell at all the result
// is (-1, -1), which cannot happen inside a legal game (the move protocol
// never invokes the strategist on a full board).
func (s *Strategist) Decide(b *board.Board, rs rules.RuleSet, seat byte, turn int) Move {
	sc := &scan{
		b:         b,
		rs:        rs,
		seat:      seat,
		turnsLeft: rs.TurnsLeft(turn),
	}

	if win, ok := sc.runScan(); ok {
		return win
	}

	if len(sc.candidates) > 0 {
		merged := mergeCandidates(sc.candidates)
		s.order(merged)

		if len(sc.blocks) > 0 {
			for _, m := range merged {
				if containsMove(sc.blocks, m.move) {
					return m.move
				}
			}
		}

		return merged[0].move
	}

	return centreMostEmpty(b)
}

// runScan sweeps rows, columns, and both diagonal families exactly once per
// cell, threading a (previousSeat, runLength) pair through each line. It
// returns (move, true) the instant a forced win is found for seat.
func (sc *scan) runScan() (Move, bool) {
	m, n := sc.b.M, sc.b.N

	// Rows: dx=1, dy=0.
	for y := 0; y < n; y++ {
		if mv, ok := sc.sweepLine(0, y, 1, 0, m); ok {
			return mv, true
		}
	}
	// Columns: dx=0, dy=1.
	for x := 0; x < m; x++ {
		if mv, ok := sc.sweepLine(x, 0, 0, 1, n); ok {
			return mv, true
		}
	}
	// Main diagonals (dx=1, dy=1), seeded from the left column and top row
	// so every diagonal of length >= 1 is visited exactly once.
	for y := 0; y < n; y++ {
		if mv, ok := sc.sweepLine(0, y, 1, 1, minDim(m, n-y)); ok {
			return mv, true
		}
	}
	for x := 1; x < m; x++ {
		if mv, ok := sc.sweepLine(x, 0, 1, 1, minDim(m-x, n)); ok {
			return mv, true
		}
	}
	// Anti-diagonals (dx=-1, dy=1), seeded from the right column and top row.
	for y := 0; y < n; y++ {
		if mv, ok := sc.sweepLine(m-1, y, -1, 1, minDim(m, n-y)); ok {
			return mv, true
		}
	}
	for x := m - 2; x >= 0; x-- {
		if mv, ok := sc.sweepLine(x, 0, -1, 1, minDim(x+1, n)); ok {
			return mv, true
		}
	}

	return Move{}, false
}

func minDim(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// sweepLine walks `steps` cells starting at (x0,y0) along (dx,dy), emitting
// each maximal run the moment it ends (a boundary: empty cell, other seat,
// or off-board). Returns (move, true) the instant a forced win for sc.seat
// is found mid-sweep.
func (sc *scan) sweepLine(x0, y0, dx, dy, steps int) (Move, bool) {
	var prevSeat byte
	runLen := 0

	for i := 0; i <= steps; i++ {
		x, y := x0+i*dx, y0+i*dy

		var cur byte
		if sc.b.InBounds(x, y) {
			cur = sc.b.Get(x, y)
		}

		if cur != 0 && cur == prevSeat {
			runLen++
		} else {
			if prevSeat != 0 {
				if mv, ok := sc.evaluateRun(x, y, dx, dy, prevSeat, runLen); ok {
					return mv, true
				}
			}
			runLen = 1
		}
		prevSeat = cur
	}
	return Move{}, false
}

// evaluateRun looks outward from both ends of a just-ended run of length
// runLen by prevSeat, ending at the cell immediately before (x,y) along
// (dx,dy). (x,y) is the first cell past the run (it already failed to
// extend it, by construction of sweepLine).
func (sc *scan) evaluateRun(x, y int, dx, dy int, prevSeat byte, runLen int) (Move, bool) {
	k := sc.rs.K
	if runLen == 0 || prevSeat == 0 {
		return Move{}, false
	}

	// "After" direction: cells starting at (x,y), continuing along (dx,dy).
	af, au, ac, acOK := sc.probe(x, y, dx, dy, k-runLen, prevSeat)
	// "Before" direction: cells starting just before the run, continuing
	// backwards along (dx,dy). The run occupies positions
	// [x-dx*runLen .. x-dx], so the first "before" cell is x-dx*(runLen+1).
	bx, by := x-dx*(runLen+1), y-dy*(runLen+1)
	bf, bu, bc, bcOK := sc.probe(bx, by, -dx, -dy, k-runLen, prevSeat)

	if acOK {
		if mv, ok := sc.handleCandidate(ac, prevSeat, runLen+au, af, bf); ok {
			return mv, true
		}
	}
	if bcOK {
		if mv, ok := sc.handleCandidate(bc, prevSeat, runLen+bu, bf, af); ok {
			return mv, true
		}
	}
	return Move{}, false
}

// probe walks up to `limit` cells from (x,y) along (dx,dy), stopping the
// instant it hits an opposing seat or runs off the board. Along the way it
// counts free cells (f) and further same-seat stones (u) — these need not
// be contiguous: a free cell followed by an own stone followed by another
// free cell still counts toward both f and u, modelling a run that can
// still be completed by filling the gaps. Returns the immediately adjacent
// empty coordinate (the candidate), set only when the very first cell (o=0)
// is itself empty.
func (sc *scan) probe(x, y, dx, dy int, limit int, runSeat byte) (f, u int, candidate Move, hasCandidate bool) {
	for o := 0; o < limit; o++ {
		ox, oy := x+dx*o, y+dy*o
		if !sc.b.InBounds(ox, oy) {
			break
		}
		v := sc.b.Get(ox, oy)
		switch {
		case v == 0:
			if o == 0 {
				candidate = Move{X: ox, Y: oy}
				hasCandidate = true
			}
			f++
		case v == runSeat:
			u++
		default:
			return f, u, candidate, hasCandidate
		}
	}
	return f, u, candidate, hasCandidate
}

// handleCandidate applies the forced-move / must-block / scored-candidate
// rules for one end of a run. length already folds in the caller's `u`
// contribution from this same direction.
func (sc *scan) handleCandidate(move Move, runSeat byte, length, free, otherFree int) (Move, bool) {
	k := sc.rs.K
	isCPU := runSeat == sc.seat

	budget := sc.rs.P
	if isCPU {
		budget = sc.turnsLeft
	}
	maxExpansion := budget
	if free < maxExpansion {
		maxExpansion = free
	}

	if length+maxExpansion >= k {
		if isCPU {
			return move, true
		}
		sc.blocks = append(sc.blocks, move)
	}

	if length+free+otherFree >= k {
		score := float64(length)*6 + float64(free)
		if isCPU {
			score += float64(k) * 2
		}
		sc.candidates = append(sc.candidates, candidate{move: move, score: score})
	}

	return Move{}, false
}

// mergeCandidates combines candidates at identical coordinates, taking the
// max score plus half the smaller — rewarding intersections of threats.
func mergeCandidates(in []candidate) []candidate {
	byMove := make(map[Move]float64, len(in))
	order := make([]Move, 0, len(in))
	for _, c := range in {
		if existing, ok := byMove[c.move]; ok {
			hi, lo := existing, c.score
			if c.score > existing {
				hi, lo = c.score, existing
			}
			byMove[c.move] = hi + lo/2
		} else {
			byMove[c.move] = c.score
			order = append(order, c.move)
		}
	}
	out := make([]candidate, len(order))
	for i, m := range order {
		out[i] = candidate{move: m, score: byMove[m]}
	}
	return out
}

// order sorts candidates descending by score, breaking near-ties randomly
// within a window governed by Cleverness: higher cleverness means a
// stricter (less randomized) ordering.
func (s *Strategist) order(c []candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		si := int(c[i].score * s.Cleverness)
		sj := int(c[j].score * s.Cleverness)
		if si == sj {
			return rand.Intn(3)-1 < 0
		}
		return si > sj
	})
}

func containsMove(moves []Move, m Move) bool {
	for _, x := range moves {
		if x == m {
			return true
		}
	}
	return false
}

// centreMostEmpty enumerates every empty cell and returns the one closest to
// the board centre by squared Euclidean distance — the fallback when no
// scored candidate exists at all (an essentially empty board).
func centreMostEmpty(b *board.Board) Move {
	cx, cy := b.M/2, b.N/2
	best := Move{-1, -1}
	bestDist := -1
	for x := 0; x < b.M; x++ {
		for y := 0; y < b.N; y++ {
			if b.Get(x, y) != 0 {
				continue
			}
			d := (x-cx)*(x-cx) + (y-cy)*(y-cy)
			if bestDist == -1 || d < bestDist {
				bestDist = d
				best = Move{x, y}
			}
		}
	}
	return best
}
