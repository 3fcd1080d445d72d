package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE audit_log (
		id          TEXT PRIMARY KEY,
		action      TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id   TEXT,
		subject     TEXT,
		source      TEXT NOT NULL DEFAULT 'operator',
		details     TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX idx_audit_log_entity ON audit_log (entity_type, entity_id);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	return db
}

// ─── Record ───

func TestRecord_GeneratesIDAndTimestamp(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	e := &Entry{
		Action:     ActionPair,
		EntityType: EntityDevice,
		EntityID:   "dev-1234",
		Subject:    "ops@lab",
		Source:     "operator",
	}
	if err := repo.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if e.CreatedAt.IsZero() {
		t.Error("expected generated CreatedAt")
	}
}

func TestRecord_PreservesDetails(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	e := &Entry{
		Action:     ActionSubmit,
		EntityType: EntityRun,
		EntityID:   "run-abcd",
		Source:     "operator",
		Details:    map[string]any{"workflow": "heaven-benchmark", "iterations": float64(3)},
	}
	if err := repo.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	result, err := repo.List(ctx, Filter{EntityID: "run-abcd"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(result.Entries))
	}
	got := result.Entries[0]
	if got.Details["workflow"] != "heaven-benchmark" {
		t.Errorf("details workflow = %v, want heaven-benchmark", got.Details["workflow"])
	}
	if got.Details["iterations"] != float64(3) {
		t.Errorf("details iterations = %v, want 3", got.Details["iterations"])
	}
}

// ─── List ───

func seedEntries(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Action: ActionRegister, EntityType: EntityDevice, EntityID: "dev-1", Source: "agent", CreatedAt: base},
		{Action: ActionPair, EntityType: EntityDevice, EntityID: "dev-1", Subject: "ops@lab", Source: "operator", CreatedAt: base.Add(time.Minute)},
		{Action: ActionSubmit, EntityType: EntityRun, EntityID: "run-1", Subject: "ops@lab", Source: "operator", CreatedAt: base.Add(2 * time.Minute)},
		{Action: ActionStop, EntityType: EntityRun, EntityID: "run-1", Subject: "ops@lab", Source: "operator", CreatedAt: base.Add(3 * time.Minute)},
		{Action: ActionSubmit, EntityType: EntityCampaign, EntityID: "cmp-1", Subject: "ops@lab", Source: "operator", CreatedAt: base.Add(4 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Record(ctx, &entries[i]); err != nil {
			t.Fatalf("seeding entry %d: %v", i, err)
		}
	}
}

func TestList_All(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedEntries(t, repo)

	result, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 5 {
		t.Errorf("total = %d, want 5", result.Total)
	}
	if len(result.Entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(result.Entries))
	}
	// Most recent first.
	if result.Entries[0].EntityID != "cmp-1" {
		t.Errorf("first entry = %s, want cmp-1", result.Entries[0].EntityID)
	}
}

func TestList_FilterByAction(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedEntries(t, repo)

	result, err := repo.List(context.Background(), Filter{Action: ActionSubmit})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("total = %d, want 2", result.Total)
	}
	for _, e := range result.Entries {
		if e.Action != ActionSubmit {
			t.Errorf("entry %s action = %s, want submit", e.ID, e.Action)
		}
	}
}

func TestList_FilterByEntity(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedEntries(t, repo)

	result, err := repo.List(context.Background(), Filter{EntityType: EntityDevice, EntityID: "dev-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("total = %d, want 2", result.Total)
	}
}

func TestList_Pagination(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	seedEntries(t, repo)

	page1, err := repo.List(context.Background(), Filter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	page2, err := repo.List(context.Background(), Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}

	if len(page1.Entries) != 2 || len(page2.Entries) != 2 {
		t.Fatalf("page sizes = %d, %d, want 2, 2", len(page1.Entries), len(page2.Entries))
	}
	if page1.Total != 5 || page2.Total != 5 {
		t.Errorf("totals = %d, %d, want 5", page1.Total, page2.Total)
	}
	if page1.Entries[0].ID == page2.Entries[0].ID {
		t.Error("pages should not overlap")
	}
}

func TestList_EmptyResultIsNotNil(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	result, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Entries == nil {
		t.Error("entries should be an empty slice, not nil")
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	result, err := repo.List(context.Background(), Filter{Limit: 10000})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("limit = %d, want clamped to 200", result.Limit)
	}
}
