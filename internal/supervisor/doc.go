// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

/*
Package supervisor runs ShadowCheck's long-lived services under a suture v4
supervisor tree.

The tree has three layers so a failing component restarts without taking its
neighbours down:

	RootSupervisor ("shadowcheck")
	├── DataSupervisor ("data-layer")
	│   ├── feed-sync (if postgres.enabled)
	│   ├── detection-scheduler (if detection.enabled)
	│   └── tuning-scheduler
	├── MessagingSupervisor ("messaging-layer")
	│   └── sighting-consumer (if eventbus.enabled)
	└── APISupervisor ("api-layer")
	    └── http-server

Each layer restarts its own children with exponential backoff once the
failure threshold is crossed. Supervisor events are logged through
sutureslog, which writes to the zerolog-backed slog handler.

The service wrappers live in the services subpackage.
*/
package supervisor
