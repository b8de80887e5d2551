// Package datasource 提供推荐系统的事实数据：行为日志、文档记录、用户画像、
// 翻译缓存（SQL），以及离线产出的每日召回数据集（HTTP + 本地缓存）。
package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/louhangyu/zhipu/core"
)

// 支持的数据库驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Options 是数据库连接配置。
type Options struct {
	Driver          string        `koanf:"driver" validate:"omitempty,oneof=mysql sqlite"`
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	// Migrate 为 true 时启动时建表
	Migrate bool `koanf:"migrate"`
}

// DB 是带方言信息的数据库连接，各个 SQL 仓库共享一个实例。
type DB struct {
	*sql.DB
	driver string
}

// Open 打开数据库并做连通性检查，连接池参数缺省时使用默认值。
func Open(ctx context.Context, opts Options) (*DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("datasource: open %s: %w", driver, err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 50
	}
	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	if driver == DriverSQLite {
		// 单写者
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "datasource: ping "+driver, err)
	}

	out := &DB{DB: db, driver: driver}
	if opts.Migrate {
		if err := out.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return out, nil
}

// NewDB 包装一个已打开的连接。
func NewDB(db *sql.DB, driver string) *DB {
	return &DB{DB: db, driver: driver}
}

// Driver 返回驱动名
func (d *DB) Driver() string {
	return d.driver
}

// Migrate 创建缺失的表，可重复执行。
func (d *DB) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if d.driver == DriverMySQL {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("datasource: migrate: %w", err)
		}
	}
	return nil
}

// dayExpr 返回把 unix 秒换算为天序号的表达式。
func (d *DB) dayExpr(col string) string {
	if d.driver == DriverMySQL {
		return col + " DIV 86400"
	}
	return col + " / 86400"
}

// upsertVerb 返回按主键覆盖写入的语句前缀。
func (d *DB) upsertVerb() string {
	if d.driver == DriverMySQL {
		return "REPLACE INTO"
	}
	return "INSERT OR REPLACE INTO"
}

func unixOrNil(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

func timeOf(sec sql.NullInt64) *time.Time {
	if !sec.Valid || sec.Int64 == 0 {
		return nil
	}
	t := time.Unix(sec.Int64, 0)
	return &t
}

// placeholders 返回 n 个以逗号分隔的 "?"
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
