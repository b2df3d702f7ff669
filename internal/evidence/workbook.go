// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package evidence

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Workbook sheet names.
const (
	SheetSummary  = "Summary"
	SheetAlerts   = "Alerts"
	SheetAnalysis = "Analysis"
	SheetCustody  = "Custody"
)

// WriteWorkbook renders p as an .xlsx workbook.
func WriteWorkbook(p *Package, w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	for _, name := range []string{SheetAlerts, SheetAnalysis, SheetCustody} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	writers := []func(*excelize.File, *Package, int) error{
		writeSummary, writeAlerts, writeAnalysis, writeCustody,
	}
	for _, write := range writers {
		if err := write(f, p, headerStyle); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, p *Package, style int) error {
	m := p.ExportMetadata
	rows := [][]interface{}{
		{"Field", "Value"},
		{"Export ID", m.ExportID},
		{"Exported At", m.ExportedAt.UTC().Format(time.RFC3339)},
		{"Exported By", m.ExportedBy},
		{"Purpose", m.Purpose},
		{"Case Reference", m.CaseReference},
		{"Alert Count", m.AlertCount},
		{"Hash Algorithm", p.HashAlgorithm},
		{"Integrity Hash", p.IntegrityHash},
	}
	return writeTable(f, SheetSummary, rows, style, []float64{18, 70})
}

func writeAlerts(f *excelize.File, p *Package, style int) error {
	rows := [][]interface{}{{
		"Alert ID", "Anomaly ID", "Type", "Level", "Status", "Immediate",
		"Final Score", "Urgency", "Assessment", "Threat Level", "Title", "Created At",
	}}
	for _, a := range p.SurveillanceAlerts {
		rows = append(rows, []interface{}{
			a.ID, a.AnomalyID, string(a.AnomalyType), string(a.Level), string(a.Status),
			a.RequiresImmediateAttention, a.FinalScore, a.Urgency, string(a.Assessment),
			string(a.ThreatLevel), a.Title, a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return writeTable(f, SheetAlerts, rows, style, nil)
}

func writeAnalysis(f *excelize.File, p *Package, style int) error {
	rows := [][]interface{}{{
		"Alert ID", "Anomaly ID", "Type", "Confidence", "Primary Device", "Related Devices",
		"Device Name", "Manufacturer", "First Seen", "Last Seen", "Evidence",
	}}
	for _, t := range p.TechnicalAnalysis {
		a := t.Anomaly
		var name, manufacturer string
		if t.Device != nil {
			name, manufacturer = t.Device.Name, t.Device.Manufacturer
		}
		rows = append(rows, []interface{}{
			t.AlertID, a.ID, string(a.Type), a.Confidence, a.PrimaryDevice,
			strings.Join(a.RelatedDevices, ", "), name, manufacturer,
			a.FirstSeen.UTC().Format(time.RFC3339), a.LastSeen.UTC().Format(time.RFC3339),
			string(a.Evidence),
		})
	}
	return writeTable(f, SheetAnalysis, rows, style, nil)
}

func writeCustody(f *excelize.File, p *Package, style int) error {
	rows := [][]interface{}{{
		"Sequence", "Timestamp", "Ref Type", "Ref ID", "Event", "Actor", "Description", "Entry Hash",
	}}
	for _, ev := range p.ChainOfCustody {
		rows = append(rows, []interface{}{
			ev.Sequence, ev.Timestamp.UTC().Format(time.RFC3339Nano), string(ev.RefType), ev.RefID,
			string(ev.EventType), ev.Actor, ev.Description, ev.EntryHash,
		})
	}
	return writeTable(f, SheetCustody, rows, style, nil)
}

func writeTable(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int, widths []float64) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) > 0 {
		last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("style %s header: %w", sheet, err)
		}
	}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("set %s width: %w", sheet, err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
