package models

import "testing"

func TestStatusRank_ForwardOrdering(t *testing.T) {
	if !(StatusRank(StatusNew) < StatusRank(StatusStarted) && StatusRank(StatusStarted) < StatusRank(StatusUpdated)) {
		t.Error("lifecycle statuses must rank in forward order")
	}
}

func TestStatusRank_ErrorOutsideOrdering(t *testing.T) {
	if StatusRank(StatusError) != -1 {
		t.Errorf("error must not participate in forward ordering, got rank %d", StatusRank(StatusError))
	}
	if StatusRank("bogus") != -1 {
		t.Errorf("unknown status must rank -1, got %d", StatusRank("bogus"))
	}
}
