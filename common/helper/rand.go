package helper

import (
	"time"

	"golang.org/x/exp/rand"
)

// GenerateRandNum 返回 [min, max) 区间的随机数（轮询抖动用）
func GenerateRandNum(min, max int) int {
	rand.Seed(uint64(time.Now().UnixNano()))

	return min + rand.Intn(max-min)
}
