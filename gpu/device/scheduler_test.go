package device

import "testing"

func TestEvenScheduler(t *testing.T) {
	type spec struct {
		workers   int
		rows      uint32
		expBlocks []uint32
	}
	specs := []spec{
		{2, 10, []uint32{5, 5}},
		{3, 10, []uint32{4, 3, 3}},
		{4, 2, []uint32{1, 1, 0, 0}},
		{0, 7, []uint32{7}},
	}

	sch := NewEvenScheduler()
	for index, s := range specs {
		blockAssignment := sch.Schedule(s.workers, s.rows)
		if len(blockAssignment) != len(s.expBlocks) {
			t.Fatalf("[spec %d] expected %d blocks; got %d", index, len(s.expBlocks), len(blockAssignment))
		}

		var total uint32
		for w, rows := range blockAssignment {
			if rows != s.expBlocks[w] {
				t.Fatalf("[spec %d] expected worker %d to be assigned %d rows; got %d", index, w, s.expBlocks[w], rows)
			}
			total += rows
		}
		if total != s.rows {
			t.Fatalf("[spec %d] expected %d rows to be scheduled; got %d", index, s.rows, total)
		}
	}
}
