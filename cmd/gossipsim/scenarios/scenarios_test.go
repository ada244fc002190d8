package scenarios

import "testing"

func TestRunS2MatchesWorkedExample(t *testing.T) {
	result, err := Run("s2", "test-s2")
	if err != nil {
		t.Fatalf("Run(s2): %v", err)
	}
	if len(result.Final) != 2 {
		t.Fatalf("want 2 snapshots, got %d", len(result.Final))
	}
	for _, snap := range result.Final {
		if diff := snap.W - 15; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("%s: want w=15, got %v", snap.Self, snap.W)
		}
	}
}

func TestRunS1ConvergesNearMean(t *testing.T) {
	result, err := Run("s1", "test-s1")
	if err != nil {
		t.Fatalf("Run(s1): %v", err)
	}
	if len(result.Final) != 3 {
		t.Fatalf("want 3 snapshots, got %d", len(result.Final))
	}
	for _, snap := range result.Final {
		if snap.W < 3.9 || snap.W > 4.1 {
			t.Errorf("%s: want w in [3.9, 4.1], got %v", snap.Self, snap.W)
		}
	}
}

func TestRunS5EpochJumpResetsEstimate(t *testing.T) {
	result, err := Run("s5", "test-s5")
	if err != nil {
		t.Fatalf("Run(s5): %v", err)
	}
	if len(result.Final) != 1 {
		t.Fatalf("want 1 snapshot, got %d", len(result.Final))
	}
	snap := result.Final[0]
	if snap.Epoch != 3 {
		t.Errorf("want epoch 3 after T-RECV trigger, got %d", snap.Epoch)
	}
	if snap.W != 7 {
		t.Errorf("want w reset to m0=7, got %v", snap.W)
	}
}

func TestRunS3VarianceNonNegative(t *testing.T) {
	result, err := Run("s3", "test-s3")
	if err != nil {
		t.Fatalf("Run(s3): %v", err)
	}
	if len(result.Final) != 4 {
		t.Fatalf("want 4 snapshots, got %d", len(result.Final))
	}
	for _, snap := range result.Final {
		if snap.Variance < -1e-9 {
			t.Errorf("%s: variance must not be negative, got %v", snap.Self, snap.Variance)
		}
		if snap.SentCount == 0 {
			t.Errorf("%s: want at least one active send over 120s, got 0", snap.Self)
		}
	}
}

func TestRunS4ClustersSeparate(t *testing.T) {
	result, err := Run("s4", "test-s4")
	if err != nil {
		t.Fatalf("Run(s4): %v", err)
	}
	if len(result.Final) != 6 {
		t.Fatalf("want 6 snapshots, got %d", len(result.Final))
	}
	for i, snap := range result.Final {
		wantCluster := i / 3
		gotCluster := 0
		if snap.W >= 5 {
			gotCluster = 1
		}
		if gotCluster != wantCluster {
			t.Errorf("%s: want estimate on cluster-%d side, got w=%v", snap.Self, wantCluster, snap.W)
		}
		if snap.Epoch == 0 {
			t.Errorf("%s: want at least one epoch boundary crossed over 60s, got epoch 0", snap.Self)
		}
	}
}

func TestRunUnknownScenarioErrors(t *testing.T) {
	if _, err := Run("s99", "x"); err == nil {
		t.Fatal("want error for unknown scenario name")
	}
}
