package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgErrCodeCheckViolation = "23514"

// IsCheckViolation は PostgreSQL の check_violation(23514) かどうかを判定します
// 空コンテンツを弾くCHECK制約に掛かった書き込みの検出に使う
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrCodeCheckViolation
	}
	return false
}
