package postgres

// SQL queries for event, alert and goal storage.

const (
	eventColumns = `
			id, site_id, kind, session_id, visitor_id,
			path, referrer_domain, utm_source, utm_medium, utm_campaign,
			device, browser, os, country, region,
			action, category, duration, scroll_depth, value,
			ingested_at, client_timestamp, ingest_seq`

	// querySaveEvent inserts one event row. Executed once per event inside the batch transaction.
	// RETURNING retrieves the auto-generated ingest_seq.
	querySaveEvent = `
		INSERT INTO events (
			id, site_id, kind, session_id, visitor_id,
			path, referrer_domain, utm_source, utm_medium, utm_campaign,
			device, browser, os, country, region,
			action, category, duration, scroll_depth, value,
			ingested_at, client_timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING ingest_seq
	`

	// queryEventsInRange fetches one site's events for a half-open ingestion range.
	// Extra equality predicates are appended by buildEventQuery.
	queryEventsInRange = `
		SELECT` + eventColumns + `
		FROM events
		WHERE site_id = $1
		  AND ingested_at >= $2
		  AND ingested_at < $3`

	orderEvents = `
		ORDER BY ingested_at ASC, ingest_seq ASC`

	alertColumns = `
			id, site_id, name, type, metric, operator, threshold, period,
			compare_with, sensitivity, channels, enabled, last_triggered_at, trigger_count`

	queryListEnabledAlerts = `
		SELECT` + alertColumns + `
		FROM alerts
		WHERE enabled = TRUE
		ORDER BY id ASC
	`

	// queryClaimTrigger advances trigger state only if the alert is enabled and
	// outside its cooldown. Zero affected rows means another tick already fired it.
	queryClaimTrigger = `
		UPDATE alerts
		SET last_triggered_at = $2,
		    trigger_count = trigger_count + 1
		WHERE id = $1
		  AND enabled = TRUE
		  AND (last_triggered_at IS NULL OR last_triggered_at <= $3)
	`

	queryInsertTrigger = `
		INSERT INTO alert_triggers (
			id, alert_id, site_id, value, baseline, threshold, message, triggered_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	queryListTriggers = `
		SELECT id, alert_id, site_id, value, baseline, threshold, message, triggered_at
		FROM alert_triggers
		WHERE alert_id = $1
		ORDER BY triggered_at DESC, id DESC
		LIMIT $2
	`

	queryGetGoal = `
		SELECT id, site_id, name, type, path, match_type, action, category
		FROM goals
		WHERE site_id = $1 AND id = $2
	`
)
