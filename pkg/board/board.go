// Package board implements the packed/unpacked board codec for m,n,k,p,q
// games: a flat byte grid used by the rule engine and CPU strategist, and a
// compact row-string wire format used for storage and transport.
package board

import "fmt"

// Board is an m-by-n grid of cell values. 0 means empty; 1..9 identify the
// seat that placed a stone there. The backing store is a flat slice indexed
// y*m+x (row-major) so callers never pay for per-row allocation.
type Board struct {
	M, N int
	data []byte
}

// New returns an empty m-by-n board.
func New(m, n int) *Board {
	return &Board{M: m, N: n, data: make([]byte, m*n)}
}

func (b *Board) index(x, y int) int { return y*b.M + x }

// InBounds reports whether (x, y) is a valid coordinate on the board.
func (b *Board) InBounds(x, y int) bool {
	return x >= 0 && x < b.M && y >= 0 && y < b.N
}

// Get returns the cell value at (x, y), or 0 if out of bounds.
func (b *Board) Get(x, y int) byte {
	if !b.InBounds(x, y) {
		return 0
	}
	return b.data[b.index(x, y)]
}

// Set places seat at (x, y). Panics if out of bounds; callers validate
// bounds before mutating (see game.Game.Move).
func (b *Board) Set(x, y int, seat byte) {
	if !b.InBounds(x, y) {
		panic(fmt.Sprintf("board: (%d,%d) out of bounds for %dx%d board", x, y, b.M, b.N))
	}
	b.data[b.index(x, y)] = seat
}

// NonZeroCount returns the number of occupied cells.
func (b *Board) NonZeroCount() int {
	n := 0
	for _, v := range b.data {
		if v != 0 {
			n++
		}
	}
	return n
}

// Full reports whether every cell is occupied.
func (b *Board) Full() bool {
	return b.NonZeroCount() == b.M*b.N
}

// Clone returns a deep copy.
func (b *Board) Clone() *Board {
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return &Board{M: b.M, N: b.N, data: cp}
}

// Pack serializes the board into the wire format: one string per column x,
// of length N, each character a decimal digit ('0'..'9'). This preserves the
// original column-major packed representation so pack(unpack(s)) == s for
// any well-formed input.
func Pack(b *Board) []string {
	out := make([]string, b.M)
	row := make([]byte, b.N)
	for x := 0; x < b.M; x++ {
		for y := 0; y < b.N; y++ {
			row[y] = '0' + b.Get(x, y)
		}
		out[x] = string(row)
	}
	return out
}

// Unpack reconstructs a Board from its packed wire format. Returns an error
// if the dimensions don't match m*n or a character isn't a valid digit.
func Unpack(packed []string, m, n int) (*Board, error) {
	if len(packed) != m {
		return nil, fmt.Errorf("board: expected %d columns, got %d", m, len(packed))
	}
	b := New(m, n)
	for x, col := range packed {
		if len(col) != n {
			return nil, fmt.Errorf("board: column %d has length %d, want %d", x, len(col), n)
		}
		for y := 0; y < n; y++ {
			c := col[y]
			if c < '0' || c > '9' {
				return nil, fmt.Errorf("board: invalid cell char %q at (%d,%d)", c, x, y)
			}
			b.data[b.index(x, y)] = c - '0'
		}
	}
	return b, nil
}
