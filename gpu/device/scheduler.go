package device

// The BlockScheduler interface is implemented by all block scheduling algorithms.
type BlockScheduler interface {
	// Split a dispatch into blocks of rows and assign them to the pool of
	// workers.
	//
	// This function returns the block height assignment for each worker.
	// Workers may be assigned zero rows when there are fewer rows than workers.
	Schedule(workers int, rows uint32) []uint32
}

// The even scheduler assumes all workers run at the same speed.
type evenScheduler struct{}

// Create a new even scheduler instance.
func NewEvenScheduler() BlockScheduler {
	return &evenScheduler{}
}

func (sch *evenScheduler) Schedule(workers int, rows uint32) []uint32 {
	if workers < 1 {
		workers = 1
	}
	blockAssignment := make([]uint32, workers)
	if rows < uint32(workers) {
		for idx := uint32(0); idx < rows; idx++ {
			blockAssignment[idx] = 1
		}
		return blockAssignment
	}

	var scheduledRows uint32
	blockH := rows / uint32(workers)
	for idx := range blockAssignment {
		blockAssignment[idx] = blockH
		scheduledRows += blockH
	}

	// In case rows don't add up to the dispatch height append the missing ones to the first worker
	blockAssignment[0] += rows - scheduledRows

	return blockAssignment
}
