package sqlcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/goforj/refreshcache/cachecore"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	defaultTTL   = 5 * time.Minute
	defaultTable = "cache_entries"
)

var identPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config configures a SQL-backed cache store.
type Config struct {
	cachecore.BaseConfig
	// DriverName is a database/sql driver: "mysql", "pgx", "postgres" or "sqlite".
	DriverName string
	// Dialect selects the SQL flavour: "postgres", "mysql" or "sqlite". It is
	// derived from DriverName when empty.
	Dialect string
	DSN        string
	// Table defaults to "cache_entries". Schema-qualified names are allowed.
	Table string
	// DB is used instead of opening DriverName/DSN when set.
	DB *sql.DB
}

// Store is the SQL-backed cachecore.Store. Close releases the statements
// and, when the store opened it, the database handle.
type Store struct {
	db         *sql.DB
	ownsDB     bool
	table      string
	dialect    string
	prefix     string
	defaultTTL time.Duration

	getStmt       *sql.Stmt
	upsertStmt    *sql.Stmt
	addInsertStmt *sql.Stmt
	addReuseStmt  *sql.Stmt
	deleteStmt    *sql.Stmt
	prefixStmt    *sql.Stmt
	flushStmt     *sql.Stmt
}

var _ cachecore.Store = (*Store)(nil)

// New opens (or adopts) a database, ensures the cache table exists and
// prepares the statements used by the store.
func New(cfg Config) (*Store, error) {
	if cfg.DriverName == "" {
		return nil, errors.New("sql cache requires a driver name")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if err := validateTableName(table); err != nil {
		return nil, err
	}
	db, ownsDB := cfg.DB, false
	if db == nil {
		if cfg.DSN == "" {
			return nil, errors.New("sql cache requires a dsn")
		}
		opened, err := sql.Open(cfg.DriverName, cfg.DSN)
		if err != nil {
			return nil, err
		}
		db, ownsDB = opened, true
	}
	if err := db.Ping(); err != nil {
		if ownsDB {
			_ = db.Close()
		}
		return nil, err
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &Store{
		db:         db,
		ownsDB:     ownsDB,
		table:      table,
		dialect:    dialectFor(cfg.Dialect, cfg.DriverName),
		prefix:     cfg.Prefix,
		defaultTTL: ttl,
	}
	if err := s.ensureSchema(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ensure cache schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("prepare cache statements: %w", err)
	}
	return s, nil
}

func (s *Store) Driver() cachecore.Driver { return cachecore.DriverSQL }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	var exp int64
	err := s.getStmt.QueryRowContext(ctx, s.cacheKey(key)).Scan(&v, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if time.Now().UnixMilli() > exp {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	exp := s.expiresAt(time.Now(), ttl)
	_, err := s.upsertStmt.ExecContext(ctx, s.cacheKey(key), value, exp, value, exp)
	return err
}

// Add inserts the row, or takes over a row whose ea has passed. The
// conditional UPDATE is what lets refresh guards be reacquired after TTL.
func (s *Store) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := time.Now()
	exp := s.expiresAt(now, ttl)
	cacheKey := s.cacheKey(key)
	_, err := s.addInsertStmt.ExecContext(ctx, cacheKey, value, exp)
	if err == nil {
		return true, nil
	}
	if !isDuplicateErr(err, s.dialect) {
		return false, err
	}
	res, err := s.addReuseStmt.ExecContext(ctx, value, exp, cacheKey, now.UnixMilli())
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.deleteStmt.ExecContext(ctx, s.cacheKey(key))
	return err
}

// DeletePrefix removes rows whose key starts with prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := s.prefixStmt.ExecContext(ctx, likePrefix(s.cacheKey(prefix)))
	return err
}

// Flush removes rows under the store prefix, or every row when no prefix is set.
func (s *Store) Flush(ctx context.Context) error {
	if s.prefix == "" {
		_, err := s.flushStmt.ExecContext(ctx)
		return err
	}
	return s.DeletePrefix(ctx, "")
}

// Close releases prepared statements and the database when owned.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.upsertStmt, s.addInsertStmt, s.addReuseStmt, s.deleteStmt, s.prefixStmt, s.flushStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *Store) expiresAt(now time.Time, ttl time.Duration) int64 {
	switch {
	case ttl == cachecore.NoExpiration:
		return math.MaxInt64
	case ttl <= 0:
		ttl = s.defaultTTL
	}
	return now.Add(ttl).UnixMilli()
}

func (s *Store) cacheKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *Store) isPostgres() bool {
	return s.dialect == dialectPostgres
}

const (
	dialectPostgres = "postgres"
	dialectMySQL    = "mysql"
	dialectSQLite   = "sqlite"
)

func dialectFor(dialect, driverName string) string {
	if dialect != "" {
		return dialect
	}
	switch driverName {
	case "postgres", "pgx":
		return dialectPostgres
	case "mysql":
		return dialectMySQL
	default:
		return dialectSQLite
	}
}

// likePrefix escapes LIKE wildcards with '!' so the pattern works unchanged
// on every dialect, including MySQL where a backslash is a string escape.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (s *Store) ensureSchema() error {
	var stmt string
	switch {
	case s.isPostgres():
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BYTEA NOT NULL,
			ea BIGINT NOT NULL
		);`, s.table)
	case s.dialect == dialectMySQL:
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k VARBINARY(255) PRIMARY KEY,
			v LONGBLOB NOT NULL,
			ea BIGINT NOT NULL
		) ENGINE=InnoDB;`, s.table)
	default:
		stmt = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL,
			ea INTEGER NOT NULL
		);`, s.table)
	}
	_, err := s.db.Exec(stmt)
	return err
}

func (s *Store) upsertSQL() string {
	p1, p2, p3, p4, p5 := s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5)
	if s.dialect == dialectMySQL {
		return fmt.Sprintf("INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON DUPLICATE KEY UPDATE v = %s, ea = %s", s.table, p1, p2, p3, p4, p5)
	}
	return fmt.Sprintf("INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON CONFLICT (k) DO UPDATE SET v = %s, ea = %s", s.table, p1, p2, p3, p4, p5)
}



func (s *Store) prepareStatements() error {
	queries := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.getStmt, fmt.Sprintf("SELECT v, ea FROM %s WHERE k = %s", s.table, s.ph(1))},
		{&s.upsertStmt, s.upsertSQL()},
		{&s.addInsertStmt, fmt.Sprintf("INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s)", s.table, s.ph(1), s.ph(2), s.ph(3))},
		{&s.addReuseStmt, fmt.Sprintf("UPDATE %s SET v = %s, ea = %s WHERE k = %s AND ea < %s", s.table, s.ph(1), s.ph(2), s.ph(3), s.ph(4))},
		{&s.deleteStmt, fmt.Sprintf("DELETE FROM %s WHERE k = %s", s.table, s.ph(1))},
		{&s.prefixStmt, fmt.Sprintf("DELETE FROM %s WHERE k LIKE %s ESCAPE '!'", s.table, s.ph(1))},
		{&s.flushStmt, fmt.Sprintf("DELETE FROM %s", s.table)},
	}
	for _, q := range queries {
		stmt, err := s.db.Prepare(q.query)
		if err != nil {
			return err
		}
		*q.dst = stmt
	}
	return nil
}

// ph returns the i-th positional placeholder for the configured dialect.
func (s *Store) ph(i int) string {
	if s.isPostgres() {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func isDuplicateErr(err error, dialect string) bool {
	msg := err.Error()
	switch dialect {
	case dialectPostgres:
		return strings.Contains(msg, "duplicate key value")
	case dialectMySQL:
		return strings.Contains(msg, "Duplicate entry")
	default:
		return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "unique constraint")
	}
}

func validateTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("sql table name is required")
	}
	for _, part := range strings.Split(name, ".") {
		if !identPartRE.MatchString(part) {
			return fmt.Errorf("invalid sql table name %q", name)
		}
	}
	return nil
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
