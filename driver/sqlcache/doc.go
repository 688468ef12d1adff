// Package sqlcache provides a database/sql-backed cachecore.Store.
//
// MySQL (go-sql-driver/mysql), PostgreSQL (pgx stdlib) and SQLite
// (modernc.org/sqlite) are registered by this package. Rows carry their
// physical expiry in the ea column as unix milliseconds.
//
//	store, err := sqlcache.New(sqlcache.Config{
//		DriverName: "sqlite",
//		DSN:        "file:cache.db",
//	})
package sqlcache
