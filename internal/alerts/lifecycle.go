// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/shadowcheck/internal/custody"
	"github.com/tomtom215/shadowcheck/internal/database"
	"github.com/tomtom215/shadowcheck/internal/detection"
	"github.com/tomtom215/shadowcheck/internal/logging"
	"github.com/tomtom215/shadowcheck/internal/metrics"
)

// LifecycleStore is the persistence the lifecycle manager needs.
type LifecycleStore interface {
	GetAlert(ctx context.Context, id string) (*Alert, error)
	TransitionTx(ctx context.Context, tx *sql.Tx, id string, to Status, at time.Time, fb *Feedback) (bool, error)
}

// errNotActive rolls back a transition whose compare-and-set matched nothing.
var errNotActive = errors.New("alert is not active")

// AnomalyReader loads the anomaly behind an alert.
type AnomalyReader interface {
	GetAnomaly(ctx context.Context, id string) (*detection.Anomaly, error)
}

// Whitelister records devices the user no longer wants alerts for.
type Whitelister interface {
	AddToWhitelist(ctx context.Context, userID, deviceID string) error
}

// FeedbackRequest is one SubmitFeedback call.
type FeedbackRequest struct {
	AlertID   string
	Rating    string
	Notes     string
	Whitelist bool
	// Actor defaults to "user:<alert owner>".
	Actor string
}

// Lifecycle drives alert state transitions and feedback.
type Lifecycle struct {
	store     LifecycleStore
	anomalies AnomalyReader
	whitelist Whitelister
	ledger    custody.TxLedger
	now       func() time.Time
}

// NewLifecycle creates a lifecycle manager.
func NewLifecycle(store LifecycleStore, anomalies AnomalyReader, whitelist Whitelister, ledger custody.TxLedger) *Lifecycle {
	return &Lifecycle{
		store:     store,
		anomalies: anomalies,
		whitelist: whitelist,
		ledger:    ledger,
		now:       time.Now,
	}
}

// Acknowledge moves an active alert to acknowledged, or to dismissed for a
// false_positive rating, without recording feedback. It returns false when
// the alert is no longer active.
func (l *Lifecycle) Acknowledge(ctx context.Context, alertID, rating, notes, actor string) (bool, error) {
	r, err := ParseRating(rating)
	if err != nil {
		return false, err
	}
	alert, err := l.store.GetAlert(ctx, alertID)
	if err != nil {
		return false, err
	}
	return l.transition(ctx, alert, r, notes, actorFor(actor, alert), nil)
}

// SubmitFeedback validates the rating, then transitions the alert, stores the
// feedback row and appends custody in one transaction. If asked, it then
// whitelists the anomaly's primary device. A repeat submission returns
// false and writes nothing.
func (l *Lifecycle) SubmitFeedback(ctx context.Context, req FeedbackRequest) (bool, error) {
	r, err := ParseRating(req.Rating)
	if err != nil {
		return false, err
	}
	alert, err := l.store.GetAlert(ctx, req.AlertID)
	if err != nil {
		return false, err
	}

	now := l.now().UTC()
	fb := &Feedback{
		ID:          uuid.New().String(),
		AlertID:     alert.ID,
		UserID:      alert.UserID,
		AnomalyType: alert.AnomalyType,
		Rating:      r,
		Notes:       req.Notes,
		Whitelist:   req.Whitelist,
		CreatedAt:   now,
	}
	ok, err := l.transition(ctx, alert, r, req.Notes, actorFor(req.Actor, alert), fb)
	if err != nil || !ok {
		return ok, err
	}

	if req.Whitelist && l.whitelist != nil {
		l.whitelistPrimary(ctx, alert)
	}
	return true, nil
}

func (l *Lifecycle) transition(ctx context.Context, alert *Alert, r Rating, notes, actor string, fb *Feedback) (bool, error) {
	to := r.TargetStatus()
	eventType := custody.EventAcknowledged
	if to == StatusDismissed {
		eventType = custody.EventDismissed
	}
	desc := fmt.Sprintf("rated %s", r)
	if strings.TrimSpace(notes) != "" {
		desc += ": " + notes
	}

	err := l.ledger.InTx(ctx, func(tx *sql.Tx) error {
		ok, err := l.store.TransitionTx(ctx, tx, alert.ID, to, l.now(), fb)
		if err != nil {
			return err
		}
		if !ok {
			return errNotActive
		}
		if err := l.ledger.AppendTx(ctx, tx, &custody.Event{
			RefID:       alert.ID,
			RefType:     custody.RefAlert,
			EventType:   eventType,
			Actor:       actor,
			Description: desc,
		}); err != nil {
			return fmt.Errorf("record custody for alert %s: %w", alert.ID, err)
		}
		return nil
	})
	switch {
	case errors.Is(err, errNotActive), database.IsTransactionConflict(err):
		logging.Debug().Str("alert_id", alert.ID).Msg("Alert is no longer active, transition skipped")
		return false, nil
	case err != nil:
		logging.Error().Err(err).Str("alert_id", alert.ID).Msg("Alert transition rolled back")
		return false, err
	}

	metrics.RecordAlertTransition(string(to))
	logging.Info().Str("alert_id", alert.ID).Str("status", string(to)).Str("actor", actor).Msg("Alert transitioned")
	return true, nil
}

func (l *Lifecycle) whitelistPrimary(ctx context.Context, alert *Alert) {
	a, err := l.anomalies.GetAnomaly(ctx, alert.AnomalyID)
	if err != nil {
		logging.Warn().Err(err).Str("alert_id", alert.ID).Msg("Cannot whitelist device, anomaly lookup failed")
		return
	}
	if err := l.whitelist.AddToWhitelist(ctx, alert.UserID, a.PrimaryDevice); err != nil {
		logging.Warn().Err(err).Str("alert_id", alert.ID).Str("device_id", a.PrimaryDevice).
			Msg("Failed to whitelist device")
		return
	}
	logging.Info().Str("user_id", alert.UserID).Str("device_id", a.PrimaryDevice).Msg("Device whitelisted")
}

func actorFor(actor string, alert *Alert) string {
	if strings.TrimSpace(actor) != "" {
		return actor
	}
	return "user:" + alert.UserID
}
