// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package evidence

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"
	"github.com/xuri/excelize/v2"

	"github.com/tomtom215/shadowcheck/internal/alerts"
	"github.com/tomtom215/shadowcheck/internal/custody"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/faults"
	"github.com/tomtom215/shadowcheck/internal/feed"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type staticClassifier map[string]*feed.DeviceInfo

func (s staticClassifier) Classify(_ context.Context, id string) (*feed.DeviceInfo, error) {
	if d, ok := s[id]; ok {
		return d, nil
	}
	return nil, faults.NotFound("device", id)
}

type fixture struct {
	db       *sql.DB
	exporter *Exporter
	ledger   *custody.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	anomalies := detection.NewDuckDBStore(db)
	alertStore := alerts.NewDuckDBStore(db)
	ledger := custody.NewLedger(db)
	for _, init := range []func(context.Context) error{anomalies.InitSchema, alertStore.InitSchema, ledger.InitSchema} {
		if err := init(ctx); err != nil {
			t.Fatalf("InitSchema: %v", err)
		}
	}

	for i, id := range []string{"a1", "a2"} {
		anomalyID := "anomaly-" + id
		device := []string{"AA:BB:CC:00:00:01", "AA:BB:CC:00:00:02"}[i]
		if err := anomalies.InsertAnomaly(ctx, &detection.Anomaly{
			ID:            anomalyID,
			PassID:        "pass-1",
			UserID:        "u1",
			Type:          detection.TypeImpossibleDistance,
			Confidence:    0.93,
			PrimaryDevice: device,
			Geometry:      []detection.GeoPoint{{Lat: 43, Lon: -83}, {Lat: 43.9, Lon: -82}},
			Evidence:      json.RawMessage(`{"max_speed_kmh":6300}`),
			FirstSeen:     testNow.Add(-time.Minute),
			LastSeen:      testNow,
			DetectedAt:    testNow,
			OriginKey:     "origin-" + id,
		}); err != nil {
			t.Fatalf("InsertAnomaly: %v", err)
		}
		if err := alertStore.InsertAlert(ctx, &alerts.Alert{
			ID: id, AnomalyID: anomalyID, UserID: "u1", AnomalyType: detection.TypeImpossibleDistance,
			Level: alerts.LevelEmergency, Status: alerts.StatusActive, Title: "Impossible distance: " + device,
			Description: "d", RecommendedActions: []string{"x"}, FinalScore: 0.98, Urgency: 0.88,
			Assessment: "state_actor_likely", ThreatLevel: "immediate", CreatedAt: testNow,
		}); err != nil {
			t.Fatalf("InsertAlert: %v", err)
		}
		for _, ev := range []*custody.Event{
			{RefID: anomalyID, RefType: custody.RefAnomaly, EventType: custody.EventCreated, Actor: custody.ActorDetector},
			{RefID: id, RefType: custody.RefAlert, EventType: custody.EventCreated, Actor: custody.ActorDetector},
		} {
			if err := ledger.Append(ctx, ev); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
	}

	classifier := staticClassifier{"AA:BB:CC:00:00:01": {DeviceID: "AA:BB:CC:00:00:01", Name: "HomeNet", Mobility: feed.MobilityFixed}}
	exp := NewExporter(alertStore, anomalies, classifier, ledger, "")
	exp.now = func() time.Time { return testNow }
	return &fixture{db: db, exporter: exp, ledger: ledger}
}

func (f *fixture) ledgerSize(t *testing.T) int {
	t.Helper()
	n, err := f.ledger.VerifyChain(context.Background())
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	return n
}

func TestExportIsHashStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{AlertIDs: []string{"a2", "a1", "a2"}, Purpose: "court filing", CaseReference: "CASE-7", Actor: "user:alice"}

	first, err := f.exporter.Export(ctx, req)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	second, err := f.exporter.Export(ctx, req)
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}

	if first.IntegrityHash != second.IntegrityHash {
		t.Errorf("repeat export hash changed: %s vs %s", first.IntegrityHash, second.IntegrityHash)
	}
	if first.ExportMetadata.ExportID == second.ExportMetadata.ExportID {
		t.Error("export ids should differ")
	}
	if first.HashAlgorithm != "SHA-256" || len(first.IntegrityHash) != 64 {
		t.Errorf("hash = %s %q", first.HashAlgorithm, first.IntegrityHash)
	}
	if first.ExportMetadata.AlertCount != 2 || len(first.SurveillanceAlerts) != 2 {
		t.Fatalf("alerts = %d, want 2 after dedup", len(first.SurveillanceAlerts))
	}
	if first.SurveillanceAlerts[0].ID != "a1" {
		t.Errorf("alerts not sorted: first is %s", first.SurveillanceAlerts[0].ID)
	}
	if len(first.ChainOfCustody) != 4 {
		t.Errorf("custody trail = %d events, want 4", len(first.ChainOfCustody))
	}
	if d := first.TechnicalAnalysis[0].Device; d == nil || d.Name != "HomeNet" {
		t.Errorf("device classification = %+v", d)
	}
	if first.TechnicalAnalysis[1].Device != nil {
		t.Error("unclassified device should be omitted")
	}
	if err := Verify(first); err != nil {
		t.Errorf("Verify: %v", err)
	}

	// Two exported events were appended, each naming its package.
	if n := f.ledgerSize(t); n != 6 {
		t.Errorf("ledger size = %d, want 6", n)
	}
	trail, err := f.ledger.Trail(ctx, []string{first.ExportMetadata.ExportID})
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 1 || trail[0].EventType != custody.EventExported ||
		trail[0].IntegrityHash != first.IntegrityHash || trail[0].Actor != "user:alice" {
		t.Errorf("export custody = %+v", trail)
	}
}

func TestExportRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no ids", Request{Purpose: "x"}, faults.ErrValidation},
		{"blank ids", Request{AlertIDs: []string{" ", ""}, Purpose: "x"}, faults.ErrValidation},
		{"no purpose", Request{AlertIDs: []string{"a1"}, Purpose: "  "}, faults.ErrValidation},
		{"unknown alert", Request{AlertIDs: []string{"a1", "zzz"}, Purpose: "x"}, faults.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.exporter.Export(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("Export = %v, want %v", err, tt.want)
			}
			if n := f.ledgerSize(t); n != 4 {
				t.Errorf("ledger grew to %d on a rejected export", n)
			}
		})
	}
}

func TestExportAbortsOnTamperedLedger(t *testing.T) {
	f := newFixture(t)
	if _, err := f.db.Exec(`UPDATE custody_events SET actor = 'user:mallory' WHERE ref_id = 'a1'`); err != nil {
		t.Fatal(err)
	}
	_, err := f.exporter.Export(context.Background(), Request{AlertIDs: []string{"a1"}, Purpose: "x"})
	if !errors.Is(err, faults.ErrIntegrityViolation) {
		t.Fatalf("Export = %v, want ErrIntegrityViolation", err)
	}
	var count int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM custody_events WHERE event_type = 'exported'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("exported events = %d, want 0", count)
	}
}

func TestVerifyDetectsEdits(t *testing.T) {
	f := newFixture(t)
	pkg, err := f.exporter.Export(context.Background(), Request{AlertIDs: []string{"a1"}, Purpose: "x"})
	if err != nil {
		t.Fatal(err)
	}
	pkg.SurveillanceAlerts[0].Title = "edited"
	if err := Verify(pkg); !errors.Is(err, faults.ErrIntegrityViolation) {
		t.Errorf("Verify = %v, want ErrIntegrityViolation", err)
	}
}

func TestWriteWorkbook(t *testing.T) {
	f := newFixture(t)
	pkg, err := f.exporter.Export(context.Background(), Request{AlertIDs: []string{"a1", "a2"}, Purpose: "review"})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteWorkbook(pkg, &buf); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}

	wb, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	want := []string{SheetSummary, SheetAlerts, SheetAnalysis, SheetCustody}
	if len(sheets) != len(want) {
		t.Fatalf("sheets = %v, want %v", sheets, want)
	}
	for i := range want {
		if sheets[i] != want[i] {
			t.Fatalf("sheets = %v, want %v", sheets, want)
		}
	}

	hash, err := wb.GetCellValue(SheetSummary, "B9")
	if err != nil {
		t.Fatal(err)
	}
	if hash != pkg.IntegrityHash {
		t.Errorf("summary hash = %q, want %q", hash, pkg.IntegrityHash)
	}
	rows, err := wb.GetRows(SheetAlerts)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[1][0] != "a1" {
		t.Errorf("alerts sheet rows = %v", rows)
	}
}
