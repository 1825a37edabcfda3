// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle wires the resolver, fetcher, extractor, installer,
// backup manager, registry and auditor into the operations exposed by the
// skillctl command line.
//
// Every operation that reads skills.json first runs
// registry.Store.LoadOrRecover, so a corrupt document is quarantined and
// rebuilt before anything else happens. Audits that follow an install never
// fail the install.
package lifecycle
