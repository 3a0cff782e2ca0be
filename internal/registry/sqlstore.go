package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/betbot/nftmarket/internal/domain"
)

// Dialect SQL 方言
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// SQLStore 基于 database/sql 的存储（sqlite / mysql）
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite 打开（必要时创建）sqlite 文件
func OpenSQLite(path string) (*SQLStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)
	return newSQLStore(db, DialectSQLite)
}

// OpenMySQL 通过 DSN 连接 mysql，例如 user:pwd@tcp(127.0.0.1:3306)/nftmarket?parseTime=true
func OpenMySQL(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("mysql dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return newSQLStore(db, DialectMySQL)
}

func newSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stmts []string
	switch s.dialect {
	case DialectSQLite:
		stmts = []string{
			`PRAGMA journal_mode=WAL;`,
			`
CREATE TABLE IF NOT EXISTS items (
  id INTEGER PRIMARY KEY,
  token_contract TEXT NOT NULL,
  token_id TEXT NOT NULL,
  price TEXT NOT NULL,
  seller TEXT NOT NULL,
  sold INTEGER NOT NULL DEFAULT 0,
  buyer TEXT,
  listed_at TEXT NOT NULL,
  sold_at TEXT
);`,
			`CREATE INDEX IF NOT EXISTS idx_items_seller ON items(seller);`,
		}
	case DialectMySQL:
		stmts = []string{
			`
CREATE TABLE IF NOT EXISTS items (
  id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
  token_contract VARCHAR(42) NOT NULL,
  token_id VARCHAR(78) NOT NULL,
  price VARCHAR(78) NOT NULL,
  seller VARCHAR(42) NOT NULL,
  sold TINYINT(1) NOT NULL DEFAULT 0,
  buyer VARCHAR(42) NULL,
  listed_at VARCHAR(40) NOT NULL,
  sold_at VARCHAR(40) NULL,
  INDEX idx_items_seller (seller)
);`,
		}
	default:
		return fmt.Errorf("unsupported sql dialect: %s", s.dialect)
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, item domain.Item) (domain.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Item{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var maxID uint64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM items`).Scan(&maxID); err != nil {
		return domain.Item{}, err
	}
	item = item.Clone()
	item.ID = maxID + 1
	item.Sold = false
	rec := toRecord(item)

	// id 为主键：即便跨进程并发写入，也只会冲突失败，不会出现重复 id
	if _, err := tx.ExecContext(ctx, `
INSERT INTO items (id,token_contract,token_id,price,seller,sold,listed_at)
VALUES (?,?,?,?,?,0,?)
`, rec.ID, rec.TokenContract, rec.TokenID, rec.Price, rec.Seller, rec.ListedAt); err != nil {
		return domain.Item{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

func (s *SQLStore) Get(ctx context.Context, id uint64) (domain.Item, error) {
	if id == 0 {
		return domain.Item{}, domain.ErrItemNotFound
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id,token_contract,token_id,price,seller,sold,buyer,listed_at,sold_at
FROM items WHERE id=?
`, id)
	var rec itemRecord
	var sold int
	var buyer, soldAt sql.NullString
	if err := row.Scan(&rec.ID, &rec.TokenContract, &rec.TokenID, &rec.Price, &rec.Seller, &sold, &buyer, &rec.ListedAt, &soldAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, domain.ErrItemNotFound
		}
		return domain.Item{}, err
	}
	rec.Sold = sold != 0
	if buyer.Valid {
		rec.Buyer = buyer.String
	}
	if soldAt.Valid {
		rec.SoldAt = soldAt.String
	}
	return rec.toItem()
}

func (s *SQLStore) MarkSold(ctx context.Context, id uint64, buyer common.Address, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE items SET sold=1, buyer=?, sold_at=? WHERE id=? AND sold=0
`, buyer.Hex(), at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	// 区分不存在 vs 已售
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrItemAlreadySold
}

func (s *SQLStore) RevertSold(ctx context.Context, id uint64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE items SET sold=0, buyer=NULL, sold_at=NULL WHERE id=?
`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// mysql 在值未变化时也返回 0，这里再确认一次是否存在
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Count(ctx context.Context) (uint64, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM items`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
