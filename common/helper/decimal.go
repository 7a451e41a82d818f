package helper

import (
	"github.com/shopspring/decimal"
)

var (
	ZeroDecimal = decimal.Zero
)

// ParseAmount 解析金额字符串，失败或为负时返回 false
func ParseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// TrimDecimal 四舍五入到2位小数后转字符串（入库/出参统一口径）
func TrimDecimal(val decimal.Decimal) string {
	return val.StringFixed(2)
}
