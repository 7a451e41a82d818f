package redis

// Redis Key 定义与构造器
// 统一管理业务使用的 Redis Key，避免散落的魔法字符串，便于统一维护与变更。

const (
	// PrefixEnterIdemResult：报名幂等"结果缓存"Key 的前缀。
	// 作用：缓存某个 idempotency key 对应的第一次成功结果，用于后续重复请求直接返回。
	PrefixEnterIdemResult = "enter:idem:result:"
	// PrefixEnterIdemLock：报名幂等"进行中锁"Key 的前缀。
	// 作用：使用 SETNX + TTL 标记 idempotency key 正在处理，吸收瞬时重复请求。
	PrefixEnterIdemLock = "enter:idem:lock:"

	// PrefixRoundStatus：当前回合状态缓存，供 /api/lottery/status 快速查询
	PrefixRoundStatus = "lotto:round:"
	// PrefixRoundResult：回合开奖结果缓存
	PrefixRoundResult = "lotto:result:"

	// 熵源相关：请求序号、待履约请求、已履约值
	KeyEntropySeq        = "entropy:seq"
	PrefixEntropyRequest = "entropy:req:"
	PrefixEntropyValue   = "entropy:val:"
)

// IdemResultKey：构造幂等"结果缓存"的完整 Key。形如：enter:idem:result:{idempotency_key}
func IdemResultKey(k string) string { return PrefixEnterIdemResult + k }

// IdemLockKey：构造幂等"进行中锁"的完整 Key。形如：enter:idem:lock:{idempotency_key}
func IdemLockKey(k string) string { return PrefixEnterIdemLock + k }

// RoundStatusKey：构造回合状态缓存 Key。形如：lotto:round:{round_number}
func RoundStatusKey(round uint64) string { return PrefixRoundStatus + utoa(round) }

// RoundResultKey：构造开奖结果缓存 Key。形如：lotto:result:{round_number}
func RoundResultKey(round uint64) string { return PrefixRoundResult + utoa(round) }

// EntropySeqKey：请求ID分配序号
func EntropySeqKey() string { return KeyEntropySeq }

// EntropyRequestKey：待履约请求登记 Key。形如：entropy:req:{request_id}
func EntropyRequestKey(requestID string) string { return PrefixEntropyRequest + requestID }

// EntropyValueKey：履约值 Key。形如：entropy:val:{request_id}
func EntropyValueKey(requestID string) string { return PrefixEntropyValue + requestID }

func utoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var b [20]byte
	pos := len(b)
	for v > 0 {
		pos--
		b[pos] = byte('0' + v%10)
		v /= 10
	}
	return string(b[pos:])
}
