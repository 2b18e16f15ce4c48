package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"orders-ai/internal/config"
	"orders-ai/internal/engine"
	"orders-ai/internal/plan"
	"orders-ai/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	sqliteStore, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })

	svc, err := NewService(sqliteStore, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func sampleRun(mode string) Run {
	return Run{
		Mode:  mode,
		Query: "acheter des semi-conducteurs",
		Plan: plan.TradePlan{
			Summary: "买入 ASML",
			Orders: []plan.OrderSpec{
				{Symbol: "ASML", Action: "BUY", Quantity: 1, OrderType: "LMT", Currency: "EUR"},
			},
		},
		Report: engine.Report{
			Mode:      engine.Mode(mode),
			Currency:  "EUR",
			TotalBuy:  600,
			BudgetCap: 800,
			Results: []engine.OrderResult{
				{Order: plan.OrderSpec{Symbol: "ASML", Action: "BUY", Quantity: 1}, State: engine.StateSubmitted},
			},
			Submitted: true,
		},
	}
}

func TestRecordRun_AssignsID(t *testing.T) {
	svc := newTestService(t)

	id, err := svc.RecordRun(context.Background(), sampleRun("submit"))
	if err != nil {
		t.Fatalf("RecordRun returned error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated run id")
	}

	runs, err := svc.RecentRuns(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("RecentRuns returned error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != id {
		t.Errorf("round-tripped id mismatch: got %s want %s", runs[0].ID, id)
	}
	if runs[0].Plan.Orders[0].Symbol != "ASML" {
		t.Errorf("plan payload lost in round trip: %v", runs[0].Plan)
	}
	if runs[0].Report.TotalBuy != 600 {
		t.Errorf("report payload lost in round trip: %v", runs[0].Report)
	}
}

func TestRecentRuns_RespectsLookback(t *testing.T) {
	svc := newTestService(t)

	old := sampleRun("submit")
	old.CreatedAt = time.Now().UTC().Add(-100 * time.Hour)
	if _, err := svc.RecordRun(context.Background(), old); err != nil {
		t.Fatalf("RecordRun returned error: %v", err)
	}
	if _, err := svc.RecordRun(context.Background(), sampleRun("check")); err != nil {
		t.Fatalf("RecordRun returned error: %v", err)
	}

	runs, err := svc.RecentRuns(context.Background(), 72*time.Hour)
	if err != nil {
		t.Fatalf("RecentRuns returned error: %v", err)
	}
	if len(runs) != 1 || runs[0].Mode != "check" {
		t.Fatalf("expected only the recent run, got %v", runs)
	}
}

func TestMemorySection_FormatsRuns(t *testing.T) {
	svc := newTestService(t)

	failed := sampleRun("submit")
	failed.Error = "买入总额 850.00 EUR 超过预算上限 800.00 EUR"
	if _, err := svc.RecordRun(context.Background(), failed); err != nil {
		t.Fatalf("RecordRun returned error: %v", err)
	}
	if _, err := svc.RecordRun(context.Background(), sampleRun("submit")); err != nil {
		t.Fatalf("RecordRun returned error: %v", err)
	}

	section, err := svc.MemorySection(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("MemorySection returned error: %v", err)
	}
	if !strings.Contains(section, "运行失败") {
		t.Errorf("memory should mention the failed run: %s", section)
	}
	if !strings.Contains(section, "运行成功") {
		t.Errorf("memory should mention the successful run: %s", section)
	}
	if !strings.Contains(section, "ASML") {
		t.Errorf("memory should mention proposed symbols: %s", section)
	}
}

func TestMemorySection_EmptyWindow(t *testing.T) {
	svc := newTestService(t)

	section, err := svc.MemorySection(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("MemorySection returned error: %v", err)
	}
	if section != "" {
		t.Errorf("expected empty memory, got %q", section)
	}
}
