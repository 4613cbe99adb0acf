package snapshot

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nugget/netroster/internal/roster"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func ptr(f float64) *float64 { return &f }

func testRows() []roster.CanonicalRow {
	return []roster.CanonicalRow{
		{
			EntityID:       "device_tracker.phone",
			NameDisplay:    "Dan's Phone",
			MACNormalized:  "aabbccddeeff",
			Online:         true,
			ConnectionType: roster.ConnWifi,
			BandType:       roster.Band5G,
			IP:             "10.0.0.23",
			DownSpeedMbps:  ptr(120.5),
			SignalDbm:      ptr(-55),
			OnlineTime:     "01:02:03",
			DeviceKey:      "dev-1",
		},
		{
			EntityID:       "device_tracker.printer",
			NameDisplay:    roster.Unknown,
			Online:         false,
			ConnectionType: roster.ConnWired,
			BandType:       roster.BandUnknown,
		},
	}
}

func TestRecordAndLatestPass(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	opts := roster.Options{
		InstanceID:  "entry-1",
		Integration: roster.IntegrationOmada,
		Now:         time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
	}

	passID, err := s.RecordPass(ctx, opts, testRows())
	if err != nil {
		t.Fatalf("RecordPass: %v", err)
	}
	if passID == "" {
		t.Fatal("RecordPass returned empty pass ID")
	}

	p, rows, err := s.LatestPass(ctx)
	if err != nil {
		t.Fatalf("LatestPass: %v", err)
	}
	if p.ID != passID || p.InstanceID != "entry-1" || p.Integration != "omada" || p.RowCount != 2 {
		t.Errorf("pass = %+v", p)
	}
	if !p.Timestamp.Equal(opts.Now) {
		t.Errorf("timestamp = %v, want %v", p.Timestamp, opts.Now)
	}

	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// Rows come back ordered by entity ID.
	phone := rows[0]
	if phone.EntityID != "device_tracker.phone" || !phone.Online {
		t.Errorf("row[0] = %+v", phone)
	}
	if phone.DownMbps == nil || *phone.DownMbps != 120.5 {
		t.Errorf("DownMbps = %v, want 120.5", phone.DownMbps)
	}
	if phone.UpMbps != nil {
		t.Errorf("UpMbps = %v, want nil for missing value", phone.UpMbps)
	}

	printer := rows[1]
	if printer.Online || printer.SignalDbm != nil {
		t.Errorf("row[1] = %+v", printer)
	}
}

func TestLatestPassPicksNewest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		opts := roster.Options{Now: base.Add(time.Duration(i) * time.Minute)}
		if _, err := s.RecordPass(ctx, opts, testRows()[:1]); err != nil {
			t.Fatalf("RecordPass %d: %v", i, err)
		}
	}

	p, _, err := s.LatestPass(ctx)
	if err != nil {
		t.Fatalf("LatestPass: %v", err)
	}
	want := base.Add(2 * time.Minute)
	if !p.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", p.Timestamp, want)
	}
}

func TestPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		opts := roster.Options{Now: base.Add(time.Duration(i) * time.Minute)}
		if _, err := s.RecordPass(ctx, opts, testRows()); err != nil {
			t.Fatalf("RecordPass %d: %v", i, err)
		}
	}

	if err := s.Prune(ctx, 2); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	var passes, rowCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM passes`).Scan(&passes); err != nil {
		t.Fatal(err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM rows`).Scan(&rowCount); err != nil {
		t.Fatal(err)
	}
	if passes != 2 {
		t.Errorf("passes after prune = %d, want 2", passes)
	}
	if rowCount != 4 {
		t.Errorf("rows after prune = %d, want 4", rowCount)
	}

	// The survivors are the two newest.
	p, _, err := s.LatestPass(ctx)
	if err != nil {
		t.Fatalf("LatestPass: %v", err)
	}
	if !p.Timestamp.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("latest after prune = %v", p.Timestamp)
	}
}

func TestLatestPassEmptyStore(t *testing.T) {
	s := testStore(t)
	if _, _, err := s.LatestPass(context.Background()); err == nil {
		t.Fatal("expected error on empty store")
	}
}
