package network

// Board geometry the network is built for. The input size is fixed by
// the weight tensors; positions of any other dimension are rejected.
const (
	BoardSize        = 19
	NumIntersections = BoardSize * BoardSize

	// 361 board points plus pass.
	PolicyOutputs = NumIntersections + 1

	// Identity, three flips, and the four transposed variants.
	NumSymmetries = 8
)

// rotateIndex maps a row-major board index through the given symmetry.
// Symmetries 4-7 transpose first, then bit 0 mirrors vertically and
// bit 1 horizontally. The same permutation is used to transform feature
// planes on the way in and to place policy outputs back onto the board
// on the way out; the combination cancels, so results are always
// reported in original coordinates.
func rotateIndex(vertex, symmetry int) int {
	x := vertex % BoardSize
	y := vertex / BoardSize

	if symmetry >= 4 {
		x, y = y, x
		symmetry -= 4
	}
	if symmetry&1 != 0 {
		y = BoardSize - y - 1
	}
	if symmetry&2 != 0 {
		x = BoardSize - x - 1
	}

	return y*BoardSize + x
}
