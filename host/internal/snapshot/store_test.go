package snapshot

import (
	"fmt"
	"testing"
)

func snap(session string, epoch uint64) *Snapshot {
	hash := fmt.Sprintf("%064d", epoch)
	return &Snapshot{
		ID:      FormatID(session, epoch, hash),
		Epoch:   epoch,
		DomHash: hash,
	}
}

func TestStoreEvictsOldestByEpoch(t *testing.T) {
	st := NewStore(DefaultCap)
	var first *Snapshot
	for epoch := uint64(1); epoch <= 21; epoch++ {
		s := snap("s1", epoch)
		if epoch == 1 {
			first = s
		}
		st.Put(s)
	}

	if st.Len() != DefaultCap {
		t.Fatalf("Len = %d, want %d", st.Len(), DefaultCap)
	}
	if st.Get(first.ID) != nil {
		t.Fatal("oldest snapshot should have been evicted")
	}
	if st.Get(snap("s1", 2).ID) == nil {
		t.Fatal("second snapshot should survive")
	}
	if got := st.Latest(); got == nil || got.Epoch != 21 {
		t.Fatalf("Latest = %+v, want epoch 21", got)
	}
}

func TestStoreGetMissing(t *testing.T) {
	st := NewStore(3)
	if st.Get("nope:1:abc") != nil {
		t.Fatal("Get on empty store should return nil")
	}
	if st.Latest() != nil {
		t.Fatal("Latest on empty store should return nil")
	}
}
