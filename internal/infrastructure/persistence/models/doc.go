// Package models holds the gorm rows of the ledger tables and their
// conversions to and from domain types. Domain packages never import it.
//
// The struct tags mirror migrations/*.sql so that AutoMigrate on sqlite
// produces a schema the repository tests can rely on; Postgres is always
// migrated from the SQL files.
package models
