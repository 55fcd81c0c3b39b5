package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DAILY_BUDGET_USD", "")
	t.Setenv("ANALYSIS_MODE", "")
	t.Setenv("ANALYZE_MAX_CONCURRENCY", "")
	t.Setenv("RESERVATION_TTL_MINUTES", "")
	t.Setenv("ANALYZE_WATCHDOG_MINUTES", "")

	cfg := Load()
	if cfg.DailyBudgetUSD != 10.0 {
		t.Fatalf("expected default daily budget 10.0, got %v", cfg.DailyBudgetUSD)
	}
	if cfg.AnalysisMode != "hybrid" {
		t.Fatalf("expected default analysis mode hybrid, got %q", cfg.AnalysisMode)
	}
	if cfg.AnalyzeMaxConcurrency != 4 {
		t.Fatalf("expected default max concurrency 4, got %d", cfg.AnalyzeMaxConcurrency)
	}
	if cfg.ReservationTTLMinutes != 10 {
		t.Fatalf("expected default reservation ttl 10, got %d", cfg.ReservationTTLMinutes)
	}
	if cfg.AnalyzeWatchdogMinutes != 30 {
		t.Fatalf("expected default watchdog minutes 30, got %d", cfg.AnalyzeWatchdogMinutes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DAILY_BUDGET_USD", "2.5")
	t.Setenv("ANALYSIS_MODE", "primary_only")
	t.Setenv("ANALYZE_MAX_CONCURRENCY", "8")
	t.Setenv("MODEL_RPS", "0.5")

	cfg := Load()
	if cfg.DailyBudgetUSD != 2.5 {
		t.Fatalf("expected daily budget 2.5, got %v", cfg.DailyBudgetUSD)
	}
	if cfg.AnalysisMode != "primary_only" {
		t.Fatalf("expected analysis mode primary_only, got %q", cfg.AnalysisMode)
	}
	if cfg.AnalyzeMaxConcurrency != 8 {
		t.Fatalf("expected max concurrency 8, got %d", cfg.AnalyzeMaxConcurrency)
	}
	if cfg.ModelRPS != 0.5 {
		t.Fatalf("expected model rps 0.5, got %v", cfg.ModelRPS)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("DAILY_BUDGET_USD", "not-a-number")
	t.Setenv("ANALYZE_MAX_CONCURRENCY", "four")

	cfg := Load()
	if cfg.DailyBudgetUSD != 10.0 {
		t.Fatalf("expected fallback daily budget 10.0, got %v", cfg.DailyBudgetUSD)
	}
	if cfg.AnalyzeMaxConcurrency != 4 {
		t.Fatalf("expected fallback max concurrency 4, got %d", cfg.AnalyzeMaxConcurrency)
	}
}
