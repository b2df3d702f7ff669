// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package feed

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tomtom215/shadowcheck/internal/faults"
)

var locationColumns = []string{"bssid", "level", "lat", "lon", "altitude", "accuracy", "time"}

func TestQuoteTable(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "app.locations_legacy", want: `"app"."locations_legacy"`},
		{in: "locations", want: `"locations"`},
		{in: "a.b.c", wantErr: true},
		{in: "app.locations; DROP TABLE x", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := quoteTable(tt.in)
			if tt.wantErr {
				if !errors.Is(err, faults.ErrValidation) {
					t.Fatalf("quoteTable(%q) error = %v, want validation error", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("quoteTable(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestPostgresSourceFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	src, err := NewPostgresSource(db, "app.locations_legacy")
	if err != nil {
		t.Fatalf("NewPostgresSource: %v", err)
	}

	ms := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	rows := sqlmock.NewRows(locationColumns).
		AddRow("aa:bb:cc:00:11:22", -61, 40.1, -74.2, 12.5, 4.0, ms).
		AddRow("aa:bb:cc:00:11:33", -70, 40.2, -74.3, 0.0, 8.0, ms+1000).
		AddRow("aa:bb:cc:00:11:44", -75, 40.3, -74.4, nil, 0.0, ms+2000)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "app"."locations_legacy"`)).
		WithArgs(int64(0), "", 0.0, 0.0, 100).
		WillReturnRows(rows)

	got, next, err := src.Fetch(context.Background(), Checkpoint{}, 100)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Fetch returned %d sightings, want 3", len(got))
	}

	first := got[0]
	if first.DeviceID != "AA:BB:CC:00:11:22" {
		t.Errorf("DeviceID = %q, want upper-cased bssid", first.DeviceID)
	}
	if !first.HasAltitude || first.Altitude != 12.5 {
		t.Errorf("altitude = %v/%v, want 12.5/true", first.Altitude, first.HasAltitude)
	}
	if first.SignalStrength != -61 || first.Accuracy != 4 || first.Source != SourceName {
		t.Errorf("first sighting = %+v", first)
	}
	if !first.Timestamp.Equal(time.UnixMilli(ms)) {
		t.Errorf("Timestamp = %v, want %v", first.Timestamp, time.UnixMilli(ms).UTC())
	}
	if got[1].HasAltitude || got[2].HasAltitude {
		t.Error("zero or null altitude should be reported as unknown")
	}

	wantNext := Checkpoint{TimeMs: ms + 2000, DeviceID: "aa:bb:cc:00:11:44", Lat: 40.3, Lon: -74.4}
	if next != wantNext {
		t.Errorf("next checkpoint = %+v, want %+v", next, wantNext)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresSourceFetchEmptyKeepsCheckpoint(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	src, _ := NewPostgresSource(db, "locations")
	cp := Checkpoint{TimeMs: 42, DeviceID: "x", Lat: 1, Lon: 2}
	mock.ExpectQuery("SELECT").
		WithArgs(int64(42), "x", 1.0, 2.0, 10).
		WillReturnRows(sqlmock.NewRows(locationColumns))

	got, next, err := src.Fetch(context.Background(), cp, 10)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 0 || next != cp {
		t.Errorf("Fetch = %d rows, %+v; want 0 rows and unchanged checkpoint", len(got), next)
	}
}

func TestPostgresSourceFetchError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	src, _ := NewPostgresSource(db, "locations")
	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT").WillReturnError(boom)

	if _, _, err := src.Fetch(context.Background(), Checkpoint{}, 10); !errors.Is(err, boom) {
		t.Fatalf("Fetch error = %v, want wrapped %v", err, boom)
	}
}

func TestPostgresClassifier(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	c, err := NewPostgresClassifier(db, "app.networks_legacy")
	if err != nil {
		t.Fatalf("NewPostgresClassifier: %v", err)
	}
	ctx := context.Background()
	cols := []string{"bssid", "ssid", "type"}

	tests := []struct {
		name     string
		rows     *sqlmock.Rows
		want     DeviceInfo
		notFound bool
	}{
		{
			name: "wifi",
			rows: sqlmock.NewRows(cols).AddRow("AA:00", " HomeNet ", "W"),
			want: DeviceInfo{DeviceID: "AA:00", Name: "HomeNet", RadioType: "wifi", Mobility: MobilityUnknown},
		},
		{
			name: "bluetooth le",
			rows: sqlmock.NewRows(cols).AddRow("AA:00", "Tag", "e"),
			want: DeviceInfo{DeviceID: "AA:00", Name: "Tag", RadioType: "bluetooth_le", Mobility: MobilityMobile},
		},
		{
			name: "cell tower",
			rows: sqlmock.NewRows(cols).AddRow("AA:00", "", "L"),
			want: DeviceInfo{DeviceID: "AA:00", RadioType: "lte", Mobility: MobilityFixed},
		},
		{
			name: "unrecognised type",
			rows: sqlmock.NewRows(cols).AddRow("AA:00", "x", "Z"),
			want: DeviceInfo{DeviceID: "AA:00", Name: "x", RadioType: "z", Mobility: MobilityUnknown},
		},
		{
			name:     "missing",
			rows:     sqlmock.NewRows(cols),
			notFound: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectQuery(regexp.QuoteMeta(`FROM "app"."networks_legacy"`)).
				WithArgs("AA:00").
				WillReturnRows(tt.rows)

			got, err := c.Classify(ctx, " aa:00 ")
			if tt.notFound {
				if !errors.Is(err, faults.ErrNotFound) {
					t.Fatalf("Classify error = %v, want not found", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if *got != tt.want {
				t.Errorf("Classify = %+v, want %+v", *got, tt.want)
			}
		})
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresClassifierUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	c, _ := NewPostgresClassifier(db, "networks")
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("dial tcp: refused"))

	if _, err := c.DeviceName(context.Background(), "AA"); !errors.Is(err, faults.ErrDependencyUnavailable) {
		t.Fatalf("DeviceName error = %v, want dependency unavailable", err)
	}
}
