package api

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/warp/employment-engine/timeoff"
)

const demoVacation = DemoAccount + "-vacation"

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	expectStatus(t, rec, http.StatusOK)
}

func balanceOf(t *testing.T, router http.Handler, employee, asOf string) string {
	t.Helper()
	rec := do(t, router, http.MethodGet, "/api/employees/"+employee+"/balance?category="+demoVacation+"&as_of="+asOf, nil)
	expectStatus(t, rec, http.StatusOK)
	return decodeBody[BalanceDTO](t, rec).Amount.Round(2).StringFixed(2)
}

func TestListScenarios(t *testing.T) {
	_, router, _ := setupTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)
	expectStatus(t, rec, http.StatusOK)
	list := decodeBody[[]ScenarioDTO](t, rec)
	if len(list) != len(scenarioLoaders) {
		t.Errorf("expected %d scenarios, got %d", len(scenarioLoaders), len(list))
	}
	for _, s := range list {
		if _, ok := scenarioLoaders[s.ID]; !ok {
			t.Errorf("scenario %s has no loader", s.ID)
		}
	}
}

func TestLoadScenario_HireEndRehire(t *testing.T) {
	// GIVEN: the hire-end-rehire scenario
	_, router, _ := setupTestRouter(t)
	loadScenario(t, router, "hire-end-rehire")

	// THEN: prorated hire, end-of-contract removal, prorated rehire
	if got := balanceOf(t, router, "emp-001", "2024-12-31"); got != "6032.79" {
		t.Errorf("expected 6032.79 after the contract end, got %s", got)
	}
	if got := balanceOf(t, router, "emp-001", "2025-06-30"); got != "17572.51" {
		t.Errorf("expected 17572.51 after the rehire, got %s", got)
	}

	// AND: the rehire reopened the vacation policy
	rec := do(t, router, http.MethodGet, "/api/employees/emp-001/assignments?dimension=time_off_policy&category="+demoVacation, nil)
	expectStatus(t, rec, http.StatusOK)
	ivs := decodeBody[[]IntervalDTO](t, rec)
	if len(ivs) != 2 {
		t.Fatalf("expected 2 vacation intervals, got %d", len(ivs))
	}
	if ivs[1].EffectiveAt != "2025-01-15" || ivs[1].EffectiveTill != nil {
		t.Errorf("expected open interval from 2025-01-15, got %s till %v", ivs[1].EffectiveAt, ivs[1].EffectiveTill)
	}
	if ivs[1].PolicyID != demoVacationPolicy {
		t.Errorf("expected %s restored, got %s", demoVacationPolicy, ivs[1].PolicyID)
	}

	// AND: the current scenario is tracked
	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	if s := decodeBody[ScenarioDTO](t, rec); s.ID != "hire-end-rehire" {
		t.Errorf("expected current scenario hire-end-rehire, got %q", s.ID)
	}
}

func TestLoadScenario_MidYearHire(t *testing.T) {
	_, router, _ := setupTestRouter(t)
	loadScenario(t, router, "mid-year-hire")

	if got := balanceOf(t, router, "emp-002", "2024-12-31"); got != "6032.79" {
		t.Errorf("expected 6032.79 (184/366 of 12000), got %s", got)
	}
	if got := balanceOf(t, router, "emp-002", "2025-06-30"); got != "18032.79" {
		t.Errorf("expected 18032.79 with the 2025 addition, got %s", got)
	}
}

func TestLoadScenario_ReplacesPreviousData(t *testing.T) {
	_, router, _ := setupTestRouter(t)
	loadScenario(t, router, "hire-end-rehire")
	loadScenario(t, router, "mid-year-hire")

	rec := do(t, router, http.MethodGet, "/api/employees/emp-001/events", nil)
	expectStatus(t, rec, http.StatusOK)
	if events := decodeBody[[]EventDTO](t, rec); len(events) != 0 {
		t.Errorf("expected emp-001 to be gone, got %d events", len(events))
	}
}

func TestLoadScenario_Unknown(t *testing.T) {
	_, router, _ := setupTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestResetDatabase(t *testing.T) {
	_, router, _ := setupTestRouter(t)
	loadScenario(t, router, "mid-year-hire")

	expectStatus(t, do(t, router, http.MethodPost, "/api/scenarios/reset", nil), http.StatusOK)

	rec := do(t, router, http.MethodGet, "/api/policies?account_id="+DemoAccount, nil)
	if policies := decodeBody[[]map[string]any](t, rec); len(policies) != 0 {
		t.Errorf("expected no policies after reset, got %d", len(policies))
	}
	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	if rec.Body.String() != "null\n" {
		t.Errorf("expected no current scenario, got %s", rec.Body.String())
	}
}

// =============================================================================
// ACCRUAL SCHEDULER
// =============================================================================

type movableClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *movableClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = at
}

func TestAccrualScheduler_RunOnce(t *testing.T) {
	// GIVEN: a mid-year hire loaded before the 2025 anniversary
	clock := &movableClock{at: time.Date(2024, time.December, 30, 9, 0, 0, 0, time.UTC)}
	h := setupTestHandler(t, timeoff.WithClock(clock))
	router := NewRouter(h, nil)
	loadScenario(t, router, "mid-year-hire")
	if got := balanceOf(t, router, "emp-002", "2025-06-30"); got != "6032.79" {
		t.Fatalf("expected no 2025 addition yet, got %s", got)
	}

	// WHEN: time passes and the scheduler runs
	clock.Set(testNow)
	scheduler := NewAccrualScheduler(h)
	written := scheduler.RunOnce(context.Background())

	// THEN: the additions that fell due are written once
	if written == 0 {
		t.Fatal("expected the scheduler to write entries")
	}
	if again := scheduler.RunOnce(context.Background()); again != 0 {
		t.Errorf("expected a second run to write nothing, got %d", again)
	}
	if got := balanceOf(t, router, "emp-002", "2025-06-30"); got != "18032.79" {
		t.Errorf("expected 18032.79 after refresh, got %s", got)
	}
}

func TestAccrualScheduler_StartStop(t *testing.T) {
	h := setupTestHandler(t)
	scheduler := NewAccrualScheduler(h)
	scheduler.CheckInterval = time.Hour

	scheduler.Start()
	scheduler.Stop()
	// A second stop is a no-op.
	scheduler.Stop()
}

func TestAccrualScheduler_Restart(t *testing.T) {
	// GIVEN: a scheduler that was started and stopped
	h := setupTestHandler(t)
	scheduler := NewAccrualScheduler(h)
	scheduler.CheckInterval = time.Hour
	scheduler.Start()
	scheduler.Stop()

	// WHEN: it is started again
	scheduler.Start()

	// THEN: it runs on a fresh stop channel
	if scheduler.ticker == nil {
		t.Fatal("expected the scheduler to restart")
	}
	select {
	case <-scheduler.stop:
		t.Fatal("expected an open stop channel after restart")
	default:
	}

	// AND: stopping twice more does not panic
	scheduler.Stop()
	scheduler.Stop()
}

func TestAccrualScheduler_Disabled(t *testing.T) {
	h := setupTestHandler(t)
	scheduler := NewAccrualScheduler(h)
	scheduler.Enabled = false

	scheduler.Start()
	if scheduler.ticker != nil {
		t.Error("expected a disabled scheduler not to start")
	}
	scheduler.Stop()
}
