package policy

import "testing"

func TestSQLiteWeights_RoundTrip(t *testing.T) {
	store, err := OpenWeights(":memory:")
	if err != nil {
		t.Fatalf("OpenWeights: %v", err)
	}
	defer store.Close()

	weights, err := store.Weights("chat:none")
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	for _, a := range Actions() {
		if weights[a] != 0 {
			t.Errorf("untrained weight for %v = %g, want 0", a, weights[a])
		}
	}

	weights[RewriteQuery] = 0.3
	weights[ExpandContext] = -0.1
	if err := store.SetWeights("chat:none", weights); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}

	got, err := store.Weights("chat:none")
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	if got[RewriteQuery] != 0.3 || got[ExpandContext] != -0.1 {
		t.Errorf("got %v", got)
	}

	// Overwrite must replace, not accumulate.
	got[RewriteQuery] = 0.5
	if err := store.SetWeights("chat:none", got); err != nil {
		t.Fatalf("SetWeights: %v", err)
	}
	again, _ := store.Weights("chat:none")
	if again[RewriteQuery] != 0.5 {
		t.Errorf("after overwrite = %g, want 0.5", again[RewriteQuery])
	}
}

func TestSQLiteWeights_KeysIsolated(t *testing.T) {
	store, err := OpenWeights(":memory:")
	if err != nil {
		t.Fatalf("OpenWeights: %v", err)
	}
	defer store.Close()

	w := zeroWeights()
	w[RewriteQuery] = 1
	if err := store.SetWeights("chat:none", w); err != nil {
		t.Fatal(err)
	}

	other, err := store.Weights("quiz:none")
	if err != nil {
		t.Fatal(err)
	}
	if other[RewriteQuery] != 0 {
		t.Error("weights leaked across state keys")
	}
}
