// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package api exposes ShadowCheck over HTTP with chi.

# Endpoints

	GET    /api/v1/health
	GET    /api/v1/alerts?user_id=&status=&limit=
	GET    /api/v1/alerts/{id}
	POST   /api/v1/alerts/{id}/feedback
	GET    /api/v1/anomalies/{id}
	PATCH  /api/v1/anomalies/{id}/investigation
	GET    /api/v1/custody/verify
	GET    /api/v1/users/{userID}/config
	PUT    /api/v1/users/{userID}/config
	GET    /api/v1/users/{userID}/safe-zones
	POST   /api/v1/users/{userID}/safe-zones
	DELETE /api/v1/users/{userID}/safe-zones/{zoneID}
	POST   /api/v1/detection/passes
	POST   /api/v1/tuning/runs
	POST   /api/v1/evidence[?format=xlsx]
	GET    /metrics

Every JSON response uses the APIResponse envelope. Errors carry a stable code:

	400 VALIDATION_FAILED / BAD_REQUEST
	404 NOT_FOUND
	409 CONFLICT
	503 SERVICE_UNAVAILABLE
	500 INTERNAL_ERROR / INTEGRITY_VIOLATION

# Middleware

Requests pass through request id tagging, real IP extraction, panic
recovery and CORS globally. API routes add httprate limiting and Prometheus
request metrics. Operation routes (passes, tuning, evidence) get a tighter
per-IP limit.
*/
package api
