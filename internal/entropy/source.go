package entropy

import (
	"context"
	"errors"
	"regexp"
)

// Source 熵预言机能力接口
// 履约是异步带外的：Request 只登记请求并立即返回，之后由独立的履约方
// （外部预言机进程或 worker.StartEntropyFulfiller）提交随机值；
// 调用方轮询 IsFulfilled 后再显式触发 finalize，核心永不阻塞等待。
type Source interface {
	// Request 登记一个随机数请求，返回请求ID
	Request(ctx context.Context, tag string) (string, error)
	// IsFulfilled 查询请求是否已履约（纯查询，底层故障视为未履约）
	IsFulfilled(ctx context.Context, requestID string) bool
	// ValueFor 返回已履约请求的随机值，未履约返回 ErrNotFulfilled
	ValueFor(ctx context.Context, requestID string) (uint64, error)
}

// 预言机相关错误定义
var (
	ErrResourceUnavailable = errors.New("entropy source unavailable")
	ErrInvalidTag          = errors.New("invalid request tag")
	ErrNotFulfilled        = errors.New("request not fulfilled")
)

// tag 格式校验：1~64位字母数字与 . _ - （预编译正则）
var tagRe = regexp.MustCompile(`^[0-9A-Za-z._-]{1,64}$`)

// ValidateTag 校验请求标签格式
func ValidateTag(tag string) error {
	if !tagRe.MatchString(tag) {
		return ErrInvalidTag
	}
	return nil
}
