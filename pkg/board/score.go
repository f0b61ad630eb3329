package board

import "gozero/pkg/game"

// Score returns the Tromp-Taylor area score from black's point of view:
// stones on the board plus empty regions touching only one color, minus
// komi. Positive means black leads.
func (b *Board) Score(komi float64) float64 {
	black, white := 0, 0
	seen := make([]bool, len(b.stones))

	for idx, c := range b.stones {
		switch c {
		case game.Black:
			black++
		case game.White:
			white++
		case game.Empty:
			if seen[idx] {
				continue
			}
			size, owner := b.floodTerritory(idx, seen)
			switch owner {
			case game.Black:
				black += size
			case game.White:
				white += size
			}
		}
	}

	return float64(black-white) - komi
}

// floodTerritory walks the empty region containing idx, marking it in
// seen, and reports its size and owner. Owner is Empty when the region
// borders both colors (or none, the empty board).
func (b *Board) floodTerritory(idx int, seen []bool) (int, game.Color) {
	stack := []int{idx}
	seen[idx] = true
	size := 0
	touchesBlack, touchesWhite := false, false

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		size++

		b.neighbors(cur, func(n int) {
			switch b.stones[n] {
			case game.Black:
				touchesBlack = true
			case game.White:
				touchesWhite = true
			case game.Empty:
				if !seen[n] {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		})
	}

	switch {
	case touchesBlack && !touchesWhite:
		return size, game.Black
	case touchesWhite && !touchesBlack:
		return size, game.White
	default:
		return size, game.Empty
	}
}
