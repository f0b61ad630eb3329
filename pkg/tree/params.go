package tree

// VirtualLossCount is added to a node's virtual-loss counter when a
// simulation enters it and removed when the simulation leaves, so that
// concurrent workers statistically prefer branches nobody is already
// walking.
const VirtualLossCount = 3

// ExplorationParam is the PUCT exploration constant. Higher values favor
// the prior over the observed winrate. Has to be tuned per network;
// default is 0.85.
var ExplorationParam float64 = 0.85

// SetExplorationParam sets the PUCT exploration constant.
func SetExplorationParam(c float64) {
	ExplorationParam = max(0.0, c)
}
