package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/internal/ledger"
	"godisc/internal/testkit"
)

func newTestServer(t *testing.T) (*Server, *ledger.MemoryLedger, *testkit.MemoryTrajectoryLog) {
	t.Helper()
	mem := ledger.NewMemoryLedger()
	trajectory := testkit.NewMemoryTrajectoryLog()
	return NewServer(mem, trajectory), mem, trajectory
}

func seedEntry(t *testing.T, mem *ledger.MemoryLedger, baseSeed int64) *candidate.LedgerEntry {
	t.Helper()
	c := candidate.Candidate{
		Family: core.FamilyID("scaled_mean"),
		Theta:  []float64{1.0},
		Alpha:  0.05,
		Sim:    candidate.SimConfig{SampleSize: 50, BaseSeed: baseSeed},
	}
	entry, err := mem.Create(context.Background(), c, core.RunID("run-ui"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return entry
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestListLedger(t *testing.T) {
	srv, mem, _ := newTestServer(t)
	a := seedEntry(t, mem, 1)
	b := seedEntry(t, mem, 2)
	if _, err := mem.Transition(context.Background(), b.Fingerprint, candidate.StateProposed, candidate.StateCalibrating); err != nil {
		t.Fatalf("transition: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Count   int                     `json:"count"`
		Entries []candidate.LedgerEntry `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}

	// state filter narrows the listing
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger?state=proposed", nil))
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Entries[0].Fingerprint != a.Fingerprint {
		t.Errorf("state filter returned %d entries", body.Count)
	}
}

func TestGetEntry(t *testing.T) {
	srv, mem, _ := newTestServer(t)
	entry := seedEntry(t, mem, 3)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger/"+entry.Fingerprint.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got candidate.LedgerEntry
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Fingerprint != entry.Fingerprint {
		t.Errorf("fingerprint = %s, want %s", got.Fingerprint, entry.Fingerprint)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger/doesnotexist", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing entry status = %d, want 404", rec.Code)
	}
}

func TestTrajectory(t *testing.T) {
	srv, _, trajectory := newTestServer(t)

	runID := core.RunID("run-t")
	for i := 0; i < 3; i++ {
		if err := trajectory.Append(context.Background(), candidate.TrainingRound{
			RunID:    runID,
			Index:    i,
			ThetaIn:  []float64{1},
			ThetaOut: []float64{1},
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/run-t/trajectory", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		RunID  string                    `json:"run_id"`
		Count  int                       `json:"count"`
		Rounds []candidate.TrainingRound `json:"rounds"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 3 || body.RunID != "run-t" {
		t.Errorf("trajectory count = %d run = %s", body.Count, body.RunID)
	}
	for i, round := range body.Rounds {
		if round.Index != i {
			t.Errorf("rounds out of order at %d", i)
		}
	}
}
