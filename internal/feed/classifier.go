// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package feed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/shadowcheck/internal/faults"
)

// Mobility says whether a device moves.
type Mobility string

const (
	MobilityFixed   Mobility = "fixed"
	MobilityMobile  Mobility = "mobile"
	MobilityUnknown Mobility = "unknown"
)

// DeviceInfo is the import layer's description of a device.
type DeviceInfo struct {
	DeviceID     string   `json:"device_id"`
	Name         string   `json:"name,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Mobility     Mobility `json:"mobility"`
	RadioType    string   `json:"radio_type,omitempty"`
}

// radio types as recorded by the import layer.
var radioTypes = map[string]struct {
	name     string
	mobility Mobility
}{
	"W": {"wifi", MobilityUnknown},
	"B": {"bluetooth", MobilityMobile},
	"E": {"bluetooth_le", MobilityMobile},
	"G": {"gsm", MobilityFixed},
	"C": {"cdma", MobilityFixed},
	"L": {"lte", MobilityFixed},
	"N": {"nr", MobilityFixed},
}

// PostgresClassifier reads device descriptions from the network table.
type PostgresClassifier struct {
	db    *sql.DB
	query string
}

// NewPostgresClassifier creates a classifier over networkTable.
func NewPostgresClassifier(db *sql.DB, networkTable string) (*PostgresClassifier, error) {
	table, err := quoteTable(networkTable)
	if err != nil {
		return nil, err
	}
	return &PostgresClassifier{
		db:    db,
		query: fmt.Sprintf(`SELECT bssid, COALESCE(ssid, ''), COALESCE(type, '') FROM %s WHERE upper(bssid) = $1`, table),
	}, nil
}

// Classify returns the device's description or a *faults.NotFoundError.
func (c *PostgresClassifier) Classify(ctx context.Context, deviceID string) (*DeviceInfo, error) {
	id := detection.NormalizeDeviceID(deviceID)
	var bssid, ssid, radio string
	err := c.db.QueryRowContext(ctx, c.query, id).Scan(&bssid, &ssid, &radio)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NotFound("device", id)
	}
	if err != nil {
		return nil, faults.Unavailable("postgres", err)
	}

	info := &DeviceInfo{DeviceID: id, Name: strings.TrimSpace(ssid), Mobility: MobilityUnknown}
	if rt, ok := radioTypes[strings.ToUpper(radio)]; ok {
		info.RadioType, info.Mobility = rt.name, rt.mobility
	} else if radio != "" {
		info.RadioType = strings.ToLower(radio)
	}
	return info, nil
}

// DeviceName implements alerts.DeviceNamer.
func (c *PostgresClassifier) DeviceName(ctx context.Context, deviceID string) (string, error) {
	info, err := c.Classify(ctx, deviceID)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}
