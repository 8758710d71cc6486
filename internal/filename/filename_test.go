package filename

import (
	"testing"
	"time"
)

func TestSanitizeTarget(t *testing.T) {
	cases := map[string]string{
		"Orders DB":     "orders_db",
		"prod--primary": "prod-primary",
		"  leading":     "leading",
		"Ünïcode!!":     "nicode",
	}
	for in, want := range cases {
		if got := SanitizeTarget(in); got != want {
			t.Errorf("SanitizeTarget(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestComposeAndParseRoundTrip(t *testing.T) {
	when := time.Date(2026, 3, 5, 13, 45, 0, 0, time.UTC)
	name := Compose("Orders DB", when, ".dump", true, true)

	want := "backup_orders_db_20260305_134500.dump.gz.enc"
	if name != want {
		t.Fatalf("Compose = %q, want %q", name, want)
	}

	parsed, err := Parse(name)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Target != "orders_db" || parsed.DBSuffix != ".dump" || !parsed.Gzipped || !parsed.Encrypted {
		t.Fatalf("Parse returned unexpected shape: %+v", parsed)
	}
	if !parsed.Timestamp.Equal(when) {
		t.Fatalf("Parse timestamp = %v, want %v", parsed.Timestamp, when)
	}
}

func TestComposeWithoutTransforms(t *testing.T) {
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	name := Compose("sqlite-app", when, ".db", false, false)
	if name != "backup_sqlite-app_20260101_000000.db" {
		t.Fatalf("Compose = %q", name)
	}

	parsed, err := Parse(name)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Gzipped || parsed.Encrypted {
		t.Fatalf("Parse found transforms that weren't applied: %+v", parsed)
	}
}

func TestParseRejectsForeignNames(t *testing.T) {
	for _, bad := range []string{
		"not-a-backup.txt",
		"backup_foo_notatimestamp.sql",
		"backup__20260101_000000.sql",
	} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) unexpectedly succeeded", bad)
		}
	}
}

func TestStorageKey(t *testing.T) {
	if got := StorageKey("orders_db", "backup_orders_db_20260101_000000.sql"); got != "orders_db/backup_orders_db_20260101_000000.sql" {
		t.Fatalf("StorageKey = %q", got)
	}
}
