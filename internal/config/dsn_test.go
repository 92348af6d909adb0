package config

import (
	"strings"
	"testing"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name       string
		dsn        string
		token      string
		wantDriver string
		wantURL    string
		wantLocal  bool
		wantErr    bool
	}{
		{name: "postgres", dsn: "postgres://u:p@localhost:5432/rank", wantDriver: DriverPostgres, wantURL: "postgres://u:p@localhost:5432/rank"},
		{name: "postgresql", dsn: "postgresql://localhost/rank", wantDriver: DriverPostgres, wantURL: "postgresql://localhost/rank"},
		{name: "turso with token", dsn: "libsql://rank.turso.io", token: "tok", wantDriver: DriverLibSQL, wantURL: "libsql://rank.turso.io?authToken=tok"},
		{name: "libsql server no token", dsn: "http://127.0.0.1:8080", wantDriver: DriverLibSQL, wantURL: "http://127.0.0.1:8080"},
		{name: "file", dsn: "file:rank.db", wantDriver: DriverLibSQL, wantURL: "file:rank.db", wantLocal: true},
		{name: "sqlite scheme", dsn: "sqlite:///var/lib/rank.db?mode=rwc", wantDriver: DriverLibSQL, wantURL: "file:/var/lib/rank.db", wantLocal: true},
		{name: "empty", dsn: "  ", wantErr: true},
		{name: "sqlite without path", dsn: "sqlite://", wantErr: true},
		{name: "unknown scheme", dsn: "mysql://localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDSN(tt.dsn, tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDSN() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Driver != tt.wantDriver {
				t.Errorf("Driver = %q, want %q", got.Driver, tt.wantDriver)
			}
			if got.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", got.URL, tt.wantURL)
			}
			if got.Local != tt.wantLocal {
				t.Errorf("Local = %v, want %v", got.Local, tt.wantLocal)
			}
		})
	}
}

func TestParseDSN_ExpandsHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	got, err := ParseDSN("sqlite://~/rank.db", "")
	if err != nil {
		t.Fatalf("ParseDSN() error = %v", err)
	}
	if !strings.HasSuffix(got.URL, "/home/tester/rank.db") {
		t.Errorf("URL = %q, want expanded home path", got.URL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CRON_SECRET", "s3cret")
	t.Setenv("RANKING_BATCH_SIZE", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.CronSecret != "s3cret" {
		t.Errorf("CronSecret = %q, want s3cret", cfg.CronSecret)
	}
	if cfg.Ranking.BatchSize != 50 {
		t.Errorf("Ranking.BatchSize = %d, want 50", cfg.Ranking.BatchSize)
	}
	if cfg.Ingest.ReplayWindow.Seconds() != 300 {
		t.Errorf("Ingest.ReplayWindow = %s, want 5m0s", cfg.Ingest.ReplayWindow)
	}
	if cfg.Retention.UsageDays != 90 || cfg.Retention.DailyRankDays != 30 {
		t.Errorf("Retention = %+v, want 90/30", cfg.Retention)
	}
	if cfg.Ingest.MaxBatchedSize != 100 {
		t.Errorf("Ingest.MaxBatchedSize = %d, want 100", cfg.Ingest.MaxBatchedSize)
	}
}
