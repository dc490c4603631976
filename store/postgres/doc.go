// Package postgres implements store.Store on PostgreSQL through database/sql.
//
// Either the pgx stdlib driver ("pgx", default) or lib/pq ("postgres") can be
// used. Token lookups lock their row with SELECT ... FOR UPDATE for the rest
// of the transaction and state transitions are conditional updates, so two
// transactions racing on one token serialise. The schema ships as embedded
// golang-migrate migrations; see [Store.Migrate].
package postgres
