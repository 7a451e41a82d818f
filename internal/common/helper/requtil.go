package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	beegocontext "github.com/beego/beego/v2/server/web/context"
)

// IsJSONContentType 判断是否为 JSON 请求
func IsJSONContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.Contains(ct, "json")
}

// 金额格式校验：非负，最多两位小数（预编译正则）
var moneyRe = regexp.MustCompile(`^(?:0|[1-9]\d*)(?:\.\d{1,2})?$`)

// IsMoneyFormat 判断金额格式
func IsMoneyFormat(s string) bool {
	return moneyRe.MatchString(strings.TrimSpace(s))
}

// 参与者ID格式：字母数字与 . _ -，1~64 字符（预编译正则）
var participantRe = regexp.MustCompile(`^[0-9A-Za-z._-]{1,64}$`)

// IsParticipantID 判断参与者ID格式
func IsParticipantID(s string) bool {
	return participantRe.MatchString(s)
}

// 默认输入保护参数
const (
	defaultJSONMaxBytes int64         = 1 << 20 // 1MB
	defaultParseTimeout time.Duration = 1 * time.Second
)

type deadlineReader struct {
	r        io.Reader
	deadline time.Time
}

func (dr *deadlineReader) Read(p []byte) (int, error) {
	if time.Now().After(dr.deadline) {
		return 0, fmt.Errorf("read timeout")
	}
	return dr.r.Read(p)
}

// jsonBodyReader 在 JSON 分支下为请求体增加大小限制与解析超时保护
func jsonBodyReader(ctx *beegocontext.Context) io.Reader {
	lr := io.LimitReader(ctx.Request.Body, defaultJSONMaxBytes)
	return &deadlineReader{r: lr, deadline: time.Now().Add(defaultParseTimeout)}
}

// GetTraceID 统一提取 trace_id：优先从中间件注入的数据取，其次从常见请求头降级
func GetTraceID(ctx *beegocontext.Context) string {
	if v := ctx.Input.GetData("trace_id"); v != nil {
		return fmt.Sprint(v)
	}
	if h := strings.TrimSpace(ctx.Input.Header("X-Trace-ID")); h != "" {
		return h
	}
	if h := strings.TrimSpace(ctx.Input.Header("Trace-Id")); h != "" {
		return h
	}
	return ""
}

// parseByContentType 按 Content-Type 选择解析函数，减少重复 if/else 分支
func parseByContentType[T any](ctx *beegocontext.Context,
	jsonParser func(io.Reader) (T, bool, string),
	formParser func(*beegocontext.Context) (T, bool, string),
) (T, bool, string) {
	ct := ctx.Input.Header("Content-Type")
	if IsJSONContentType(ct) {
		return jsonParser(jsonBodyReader(ctx))
	}
	return formParser(ctx)
}

// EnterParsed 为解析后的报名入参（与控制器/服务层解耦）
type EnterParsed struct {
	ParticipantID  string `json:"participant_id"`
	Platform       int    `json:"platform"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ParseEnterFromJSON 解析 JSON 到 EnterParsed。失败返回 false 与错误消息。
func ParseEnterFromJSON(r io.Reader) (EnterParsed, bool, string) {
	var out EnterParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return EnterParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

// ParseEnterFromForm 从表单读取字段并做强校验，返回 EnterParsed。失败返回 false 与可读错误信息。
func ParseEnterFromForm(ctx *beegocontext.Context) (EnterParsed, bool, string) {
	var out EnterParsed
	out.ParticipantID = strings.TrimSpace(ctx.Input.Query("participant_id"))
	if out.ParticipantID == "" {
		return EnterParsed{}, false, "participant_id required"
	}

	// platform: 可选，默认 1；如传入，需为 1..127 的整数
	pStr := strings.TrimSpace(ctx.Input.Query("platform"))
	if pStr == "" {
		out.Platform = 1
	} else {
		pn, err := strconv.Atoi(pStr)
		if err != nil || pn <= 0 || pn >= 128 {
			out.Platform = 1
		} else {
			out.Platform = pn
		}
	}

	out.IdempotencyKey = strings.TrimSpace(ctx.Input.Query("idempotency_key"))
	if out.IdempotencyKey == "" {
		return EnterParsed{}, false, "idempotency_key required"
	}

	return out, true, ""
}

// ValidateEnter 对通用字段做二次校验（适用于 JSON 与 FORM）。失败返回 false 与错误消息。
func ValidateEnter(in *EnterParsed) (bool, string) {
	in.ParticipantID = strings.TrimSpace(in.ParticipantID)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.ParticipantID == "" || in.IdempotencyKey == "" {
		return false, "missing required fields: participant_id/idempotency_key"
	}
	if !IsParticipantID(in.ParticipantID) {
		return false, "participant_id must match [0-9A-Za-z._-]{1,64}"
	}
	// 额外长度保护，避免异常超长输入
	if len(in.IdempotencyKey) > 64 {
		return false, "invalid request"
	}
	if in.Platform == 0 {
		in.Platform = 1
	}
	return true, ""
}

// ParseAndValidateEnter 按 Content-Type 自动解析并做统一校验
func ParseAndValidateEnter(ctx *beegocontext.Context) (EnterParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseEnterFromJSON, ParseEnterFromForm)
	if !ok {
		return EnterParsed{}, false, msg
	}
	if ok, msg := ValidateEnter(&out); !ok {
		return EnterParsed{}, false, msg
	}
	return out, true, ""
}

// -------- RequestSelection helpers --------

type RequestSelectionParsed struct {
	Tag          string `json:"tag"`           // 随机请求标签（可选，默认 lotto-round-{n}）
	PaymentProof string `json:"payment_proof"` // 付费凭证金额（可选，配置了 min_fee 时必填）
	Operator     string `json:"operator"`      // 操作方标识（审计用，可选）
}

func ParseRequestSelectionFromJSON(r io.Reader) (RequestSelectionParsed, bool, string) {
	var out RequestSelectionParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return RequestSelectionParsed{}, false, "invalid request"
	}
	return out, true, ""
}

func ParseRequestSelectionFromForm(ctx *beegocontext.Context) (RequestSelectionParsed, bool, string) {
	var out RequestSelectionParsed
	out.Tag = strings.TrimSpace(ctx.Input.Query("tag"))
	out.PaymentProof = strings.TrimSpace(ctx.Input.Query("payment_proof"))
	out.Operator = strings.TrimSpace(ctx.Input.Query("operator"))
	return out, true, ""
}

func ValidateRequestSelection(in *RequestSelectionParsed) (bool, string) {
	in.Tag = strings.TrimSpace(in.Tag)
	in.PaymentProof = strings.TrimSpace(in.PaymentProof)
	in.Operator = strings.TrimSpace(in.Operator)
	if len(in.Tag) > 64 || len(in.PaymentProof) > 32 || len(in.Operator) > 64 {
		return false, "invalid request"
	}
	// 付费凭证如传入需满足金额格式
	if in.PaymentProof != "" && !IsMoneyFormat(in.PaymentProof) {
		return false, "payment_proof must be numeric with up to 2 decimals"
	}
	return true, ""
}

func ParseAndValidateRequestSelection(ctx *beegocontext.Context) (RequestSelectionParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseRequestSelectionFromJSON, ParseRequestSelectionFromForm)
	if !ok {
		return RequestSelectionParsed{}, false, msg
	}
	if ok, msg := ValidateRequestSelection(&out); !ok {
		return RequestSelectionParsed{}, false, msg
	}
	return out, true, ""
}

// -------- Finalize helpers --------

type FinalizeParsed struct {
	RequestID string `json:"request_id"` // 必填：申请开奖时返回的随机请求ID
	Operator  string `json:"operator"`
}

func ParseFinalizeFromJSON(r io.Reader) (FinalizeParsed, bool, string) {
	var out FinalizeParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return FinalizeParsed{}, false, "invalid request"
	}
	return out, true, ""
}

func ParseFinalizeFromForm(ctx *beegocontext.Context) (FinalizeParsed, bool, string) {
	var out FinalizeParsed
	out.RequestID = strings.TrimSpace(ctx.Input.Query("request_id"))
	out.Operator = strings.TrimSpace(ctx.Input.Query("operator"))
	return out, true, ""
}

func ValidateFinalize(in *FinalizeParsed) (bool, string) {
	in.RequestID = strings.TrimSpace(in.RequestID)
	in.Operator = strings.TrimSpace(in.Operator)
	if in.RequestID == "" {
		return false, "request_id required"
	}
	if len(in.RequestID) > 64 || len(in.Operator) > 64 {
		return false, "invalid request"
	}
	return true, ""
}

func ParseAndValidateFinalize(ctx *beegocontext.Context) (FinalizeParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseFinalizeFromJSON, ParseFinalizeFromForm)
	if !ok {
		return FinalizeParsed{}, false, msg
	}
	if ok, msg := ValidateFinalize(&out); !ok {
		return FinalizeParsed{}, false, msg
	}
	return out, true, ""
}

// -------- Reset helpers --------

type ResetParsed struct {
	Operator string `json:"operator"`
}

func ParseResetFromJSON(r io.Reader) (ResetParsed, bool, string) {
	var out ResetParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return ResetParsed{}, false, "invalid request"
	}
	return out, true, ""
}

func ParseResetFromForm(ctx *beegocontext.Context) (ResetParsed, bool, string) {
	var out ResetParsed
	out.Operator = strings.TrimSpace(ctx.Input.Query("operator"))
	return out, true, ""
}

func ValidateReset(in *ResetParsed) (bool, string) {
	in.Operator = strings.TrimSpace(in.Operator)
	if len(in.Operator) > 64 {
		return false, "invalid request"
	}
	return true, ""
}

func ParseAndValidateReset(ctx *beegocontext.Context) (ResetParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseResetFromJSON, ParseResetFromForm)
	if !ok {
		return ResetParsed{}, false, msg
	}
	if ok, msg := ValidateReset(&out); !ok {
		return ResetParsed{}, false, msg
	}
	return out, true, ""
}
