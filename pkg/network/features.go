package network

import (
	"github.com/OneOfOne/xxhash"

	"gozero/pkg/game"
)

// Input feature encoding: 8 planes of stones belonging to the side to
// move over the last 8 positions, 8 planes of opponent stones, and two
// constant color-to-move planes.
const (
	InputChannels = 18

	ourOffset   = 0
	theirOffset = 8
	historySpan = 8

	blackToMovePlane = 16
	whiteToMovePlane = 17
)

// Plane is one binary 19x19 feature plane in row-major order.
type Plane [NumIntersections]bool

// Planes is the full network input for one position.
type Planes [InputChannels]Plane

// GatherFeatures encodes the current position and up to 8 prior
// positions into binary feature planes. Missing history leaves the
// corresponding planes empty.
func GatherFeatures(state game.State) Planes {
	var planes Planes

	toMove := state.ToMove()
	if toMove == game.White {
		fillPlane(&planes[whiteToMovePlane])
	} else {
		fillPlane(&planes[blackToMovePlane])
	}

	for h := 0; h < historySpan; h++ {
		pos, ok := state.History(h)
		if !ok {
			break
		}
		for idx := 0; idx < NumIntersections; idx++ {
			color := pos.Stone(idx)
			if color == game.Empty {
				continue
			}
			if color == toMove {
				planes[ourOffset+h][idx] = true
			} else {
				planes[theirOffset+h][idx] = true
			}
		}
	}

	return planes
}

func fillPlane(p *Plane) {
	for i := range p {
		p[i] = true
	}
}

// Hash returns a position fingerprint of the planes, used by the
// evaluation-dedup ledger.
func (p *Planes) Hash() uint64 {
	buf := make([]byte, InputChannels*NumIntersections)
	for c := range p {
		base := c * NumIntersections
		for i, set := range p[c] {
			if set {
				buf[base+i] = 1
			}
		}
	}
	return xxhash.Checksum64(buf)
}
