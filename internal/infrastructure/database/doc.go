// Package database opens the control plane's SQLite store and applies its
// embedded schema migrations.
//
// Everything Raptor-X persists lives here: the device registry, run and
// campaign records, run logs and the audit trail. SQLite is deliberate for
// a single-node control plane; the connection pool is pinned to one writer
// and WAL mode keeps reads flowing during run-log writes.
//
// Migrations are forward-only. Schema changes are additive (new tables, new
// nullable columns) and each migration commits in its own transaction, so a
// failed migration leaves earlier ones applied and is retried on the next
// start. The migrations package registers the embedded files via
// MigrationsFS at init.
package database
