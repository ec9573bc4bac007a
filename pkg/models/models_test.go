package models

import "testing"

func TestSeverityRankAndDecay(t *testing.T) {
	if SeverityCritical.Rank() != 0 {
		t.Fatalf("expected critical rank 0")
	}
	if SeverityInfo.Rank() <= SeverityLow.Rank() {
		t.Fatalf("expected info to rank below low")
	}
	if SeverityCritical.Decayed() != SeverityHigh {
		t.Fatalf("expected critical to decay to high")
	}
	if SeverityInfo.Decayed() != SeverityInfo {
		t.Fatalf("expected info to be terminal in decay")
	}
}
