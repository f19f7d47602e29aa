package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/pulse-analytics/pulse/internal/api/v1"
	"github.com/pulse-analytics/pulse/internal/core/storage"
)

// AlertAdapter implements storage.AlertStore using PostgreSQL.
// The cooldown check and the trigger write share one transaction; that
// conditional update is what keeps overlapping scheduler ticks from double firing.
type AlertAdapter struct {
	db *sql.DB
}

// NewAlertAdapter creates a new AlertAdapter sharing the given connection.
func NewAlertAdapter(db *sql.DB) *AlertAdapter {
	return &AlertAdapter{db: db}
}

func (a *AlertAdapter) ListEnabledAlerts(ctx context.Context) ([]*v1.Alert, error) {
	rows, err := a.db.QueryContext(ctx, queryListEnabledAlerts)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*v1.Alert
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list alerts: iterate rows: %w", err)
	}
	return alerts, nil
}

// RecordTrigger claims the trigger slot and appends history in one transaction.
// notBefore is the latest last_triggered_at that still allows a new trigger.
func (a *AlertAdapter) RecordTrigger(ctx context.Context, rec *v1.TriggerRecord, notBefore time.Time) (bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("record trigger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx, queryClaimTrigger, rec.AlertID, rec.TriggeredAt, notBefore)
	if err != nil {
		return false, fmt.Errorf("record trigger: claim: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record trigger: check claim: %w", err)
	}
	if rowsAffected == 0 {
		slog.Debug("[AlertAdapter] Trigger not claimed (disabled or in cooldown)",
			"alert_id", rec.AlertID,
			"not_before", notBefore)
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, queryInsertTrigger,
		rec.ID,
		rec.AlertID,
		rec.SiteID,
		rec.Value,
		rec.Baseline,
		rec.Threshold,
		rec.Message,
		rec.TriggeredAt,
	); err != nil {
		return false, fmt.Errorf("record trigger: insert history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("record trigger: commit: %w", err)
	}
	return true, nil
}

func (a *AlertAdapter) ListTriggers(ctx context.Context, alertID string, limit int) ([]*v1.TriggerRecord, error) {
	rows, err := a.db.QueryContext(ctx, queryListTriggers, alertID, limit)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	records := []*v1.TriggerRecord{}
	for rows.Next() {
		var rec v1.TriggerRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.AlertID,
			&rec.SiteID,
			&rec.Value,
			&rec.Baseline,
			&rec.Threshold,
			&rec.Message,
			&rec.TriggeredAt,
		); err != nil {
			return nil, fmt.Errorf("list triggers: scan row: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list triggers: iterate rows: %w", err)
	}
	return records, nil
}

func scanAlertRow(row scanner) (*v1.Alert, error) {
	var (
		alert                                         v1.Alert
		alertType, operator, compareWith, sensitivity string
		channelsJSON                                  []byte
		lastTriggered                                 sql.NullTime
	)

	if err := row.Scan(
		&alert.ID,
		&alert.SiteID,
		&alert.Name,
		&alertType,
		&alert.Metric,
		&operator,
		&alert.Threshold,
		&alert.Period,
		&compareWith,
		&sensitivity,
		&channelsJSON,
		&alert.Enabled,
		&lastTriggered,
		&alert.TriggerCount,
	); err != nil {
		return nil, fmt.Errorf("scan alert row: %w", err)
	}

	alert.Type = v1.AlertType(alertType)
	alert.Operator = v1.AlertOperator(operator)
	alert.CompareWith = v1.CompareWith(compareWith)
	alert.Sensitivity = v1.Sensitivity(sensitivity)

	if len(channelsJSON) > 0 {
		if err := json.Unmarshal(channelsJSON, &alert.Channels); err != nil {
			return nil, fmt.Errorf("unmarshal channels for alert %s: %w", alert.ID, err)
		}
	}
	if lastTriggered.Valid {
		t := lastTriggered.Time.UTC()
		alert.LastTriggeredAt = &t
	}
	return &alert, nil
}

// GoalAdapter implements storage.GoalStore using PostgreSQL.
type GoalAdapter struct {
	db *sql.DB
}

// NewGoalAdapter creates a new GoalAdapter sharing the given connection.
func NewGoalAdapter(db *sql.DB) *GoalAdapter {
	return &GoalAdapter{db: db}
}

func (a *GoalAdapter) GetGoal(ctx context.Context, siteID, goalID string) (*v1.Goal, error) {
	var (
		goal            v1.Goal
		kind, matchType string
	)
	err := a.db.QueryRowContext(ctx, queryGetGoal, siteID, goalID).Scan(
		&goal.ID,
		&goal.SiteID,
		&goal.Name,
		&kind,
		&goal.Path,
		&matchType,
		&goal.Action,
		&goal.Category,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get goal %s: %w", goalID, err)
	}

	goal.Kind = v1.GoalKind(kind)
	goal.MatchType = v1.MatchType(matchType)
	return &goal, nil
}
