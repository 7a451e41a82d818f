package mysql

import (
	"sync"

	"github.com/jmoiron/sqlx"
)

var (
	once   sync.Once
	sqlxDB *sqlx.DB
)

// SQLX 返回 sqlx 包装的全局句柄；未注入 DB 时返回 nil
func SQLX() *sqlx.DB {
	once.Do(func() {
		if DB() != nil {
			sqlxDB = sqlx.NewDb(DB(), "mysql")
		}
	})
	return sqlxDB
}
