package service

import (
	"errors"
	"time"

	"lotto-server/internal/model"
	"lotto-server/internal/state"

	gomysql "github.com/go-sql-driver/mysql"
)

// 服务层通用约定：事务超时、幂等锁/结果缓存 TTL
const (
	defaultTxTimeout = 3 * time.Second
	idemLockTTL      = 45 * time.Second
	idemResultTTL    = 1 * time.Minute
	roundCacheTTL    = 2 * time.Minute
)

// 服务层错误（业务前置条件之外的拒绝原因）
var (
	// ErrDuplicateInFlight 同一幂等键的请求正在处理中，调用方应稍后重试
	ErrDuplicateInFlight = errors.New("duplicate request in flight")
	// ErrFeeTooLow 付费凭证低于配置的最低费用
	ErrFeeTooLow = errors.New("payment proof below minimum fee")
	// ErrTooManyParticipants 达到单回合报名上限
	ErrTooManyParticipants = errors.New("round participant limit reached")
)

// isMySQLDuplicateKeyError 识别唯一键冲突（errno 1062）
func isMySQLDuplicateKeyError(err error) bool {
	var me *gomysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

// statusCodeToState 数据库状态码转状态机状态名
func statusCodeToState(code int8) string {
	switch code {
	case model.RoundStatusAwaiting:
		return state.StateAwaiting
	case model.RoundStatusComplete:
		return state.StateComplete
	default:
		return state.StateOpen
	}
}
