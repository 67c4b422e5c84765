package state

// ComputeFunding splits an obligation between what the pool can pay from its
// own capital and the deficit that must be borrowed from the reserve.
func ComputeFunding(available int64, obligation int64) (fromPool int64, fromReserve int64) {
	if available < 0 {
		available = 0
	}
	if available >= obligation {
		return obligation, 0
	}
	return available, obligation - available
}

// CanCoverDeficit checks if the reserve balance covers the deficit.
func CanCoverDeficit(reserveBalance int64, deficit int64) bool {
	return reserveBalance >= deficit
}
