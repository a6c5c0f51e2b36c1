// Package sqlstore persists users and refresh sessions in SQL.
//
// One Store implements both authcore.CredentialStore and
// authcore.RefreshTokenStore over PostgreSQL (driver "pgx") or SQLite
// (driver "sqlite"). Migrate applies the embedded goose migrations.
//
// Timestamps are stored as Unix milliseconds and booleans as integers so
// the same statements run on both databases.
package sqlstore
