package retention

import (
	"testing"
	"time"
)

func mkArtifact(name string, daysAgo int, size int64) Artifact {
	return Artifact{
		Name:      name,
		CreatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC).Add(-time.Duration(daysAgo) * 24 * time.Hour),
		Size:      size,
	}
}

func intPtr(n int) *int { return &n }

func TestEvaluateRejectsZeroOrMultipleModes(t *testing.T) {
	if _, err := Evaluate(Policy{}, nil, time.Now()); err == nil {
		t.Fatal("expected error for no mode configured")
	}
	if _, err := Evaluate(Policy{MaxCount: intPtr(1), MaxDays: intPtr(1)}, nil, time.Now()); err == nil {
		t.Fatal("expected error for multiple modes configured")
	}
}

func TestMaxCount(t *testing.T) {
	artifacts := []Artifact{mkArtifact("c", 0, 1), mkArtifact("b", 1, 1), mkArtifact("a", 2, 1)}
	toDelete, err := Evaluate(Policy{MaxCount: intPtr(2)}, artifacts, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(toDelete) != 1 || toDelete[0].Name != "a" {
		t.Fatalf("MaxCount=2 toDelete = %+v, want just the oldest", toDelete)
	}
}

func TestMaxCountKeepsEverythingWhenUnderLimit(t *testing.T) {
	artifacts := []Artifact{mkArtifact("a", 0, 1)}
	toDelete, err := Evaluate(Policy{MaxCount: intPtr(5)}, artifacts, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(toDelete) != 0 {
		t.Fatalf("expected nothing to delete, got %+v", toDelete)
	}
}

func TestMaxDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	artifacts := []Artifact{mkArtifact("recent", 1, 1), mkArtifact("old", 10, 1)}
	toDelete, err := Evaluate(Policy{MaxDays: intPtr(5)}, artifacts, now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(toDelete) != 1 || toDelete[0].Name != "old" {
		t.Fatalf("MaxDays=5 toDelete = %+v", toDelete)
	}
}

func TestMaxSizeMB(t *testing.T) {
	mb := int64(1 << 20)
	artifacts := []Artifact{
		mkArtifact("newest", 0, 3 * mb),
		mkArtifact("middle", 1, 3 * mb),
		mkArtifact("oldest", 2, 3 * mb),
	}
	toDelete, err := Evaluate(Policy{MaxSizeMB: intPtr(5)}, artifacts, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(toDelete) != 1 || toDelete[0].Name != "oldest" {
		t.Fatalf("MaxSizeMB=5 toDelete = %+v, want only oldest evicted", toDelete)
	}
}

func TestSmartKeepsOnePerBucket(t *testing.T) {
	artifacts := []Artifact{
		mkArtifact("today", 0, 1),
		mkArtifact("yesterday", 1, 1),
		mkArtifact("two-weeks-ago", 16, 1),
		mkArtifact("last-year", 400, 1),
	}
	toDelete, err := Evaluate(Policy{Smart: &Smart{Daily: 2, Weekly: 0, Monthly: 0, Yearly: 1}}, artifacts, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	deletedNames := make(map[string]bool)
	for _, a := range toDelete {
		deletedNames[a.Name] = true
	}
	if deletedNames["today"] || deletedNames["yesterday"] {
		t.Fatalf("smart daily=2 should keep the two most recent days, got toDelete=%+v", toDelete)
	}
	if !deletedNames["two-weeks-ago"] {
		t.Fatalf("smart with weekly=0 should delete an artifact outside the daily/yearly buckets")
	}
}

func TestSmartTieBreakByFilenameDescending(t *testing.T) {
	sameDay := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	artifacts := []Artifact{
		{Name: "backup_a", CreatedAt: sameDay, Size: 1},
		{Name: "backup_z", CreatedAt: sameDay, Size: 1},
	}
	toDelete, err := Evaluate(Policy{Smart: &Smart{Daily: 1}}, artifacts, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(toDelete) != 1 || toDelete[0].Name != "backup_a" {
		t.Fatalf("tie-break should keep backup_z (lexicographically greatest), toDelete = %+v", toDelete)
	}
}
