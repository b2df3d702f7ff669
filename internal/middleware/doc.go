// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package middleware provides the HTTP middleware shared by the ShadowCheck API.

  - RequestID: accepts or mints an X-Request-ID and seeds the logging context
    with it and a fresh correlation id.
  - Metrics: records shadowcheck_api_requests_total and the request duration
    histogram, labelled by the chi route pattern so path parameters do not
    explode label cardinality.

Both are plain func(http.Handler) http.Handler and compose with chi's Use.
*/
package middleware
