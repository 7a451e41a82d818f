package entropy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// 预言机接口统一超时时间
const oracleTimeout = 3 * time.Second

// 全局复用连接的HTTP客户端
var oracleClient = &fasthttp.Client{
	ReadTimeout:         oracleTimeout,
	WriteTimeout:        oracleTimeout,
	MaxIdleConnDuration: 90 * time.Second,
	MaxConnsPerHost:     50,
	MaxConnWaitTimeout:  3 * time.Second,
}

// HTTPSource 远程熵预言机的 REST 客户端
// 约定接口：
//   POST {base}/request            {"tag": "..."} -> {"request_id": "..."}
//   GET  {base}/fulfilled/{id}     -> {"fulfilled": true|false}
//   GET  {base}/value/{id}         -> {"value": <uint64>}，未履约返回 404
type HTTPSource struct {
	baseURL string
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *HTTPSource) Request(ctx context.Context, tag string) (string, error) {
	if err := ValidateTag(tag); err != nil {
		return "", err
	}
	body, _ := json.Marshal(map[string]string{"tag": tag})
	respBody, status, err := s.do("POST", s.baseURL+"/request", body)
	if err != nil || status != 200 {
		return "", ErrResourceUnavailable
	}
	var out struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil || out.RequestID == "" {
		return "", ErrResourceUnavailable
	}
	return out.RequestID, nil
}

func (s *HTTPSource) IsFulfilled(ctx context.Context, requestID string) bool {
	respBody, status, err := s.do("GET", fmt.Sprintf("%s/fulfilled/%s", s.baseURL, requestID), nil)
	if err != nil || status != 200 {
		return false
	}
	var out struct {
		Fulfilled bool `json:"fulfilled"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return false
	}
	return out.Fulfilled
}

func (s *HTTPSource) ValueFor(ctx context.Context, requestID string) (uint64, error) {
	respBody, status, err := s.do("GET", fmt.Sprintf("%s/value/%s", s.baseURL, requestID), nil)
	if err != nil {
		return 0, ErrNotFulfilled
	}
	if status == 404 {
		return 0, ErrNotFulfilled
	}
	if status != 200 {
		return 0, ErrNotFulfilled
	}
	var out struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, fmt.Errorf("malformed oracle response for %s: %w", requestID, err)
	}
	return out.Value, nil
}

func (s *HTTPSource) do(method, uri string, body []byte) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseResponse(resp)
		fasthttp.ReleaseRequest(req)
	}()

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	if method == "POST" {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	err := oracleClient.DoTimeout(req, resp, oracleTimeout)

	var respBytes []byte
	statusCode := 0
	if err == nil {
		respBytes = append(respBytes, resp.Body()...)
		statusCode = resp.StatusCode()
	}
	return respBytes, statusCode, errors.WithStack(err)
}
