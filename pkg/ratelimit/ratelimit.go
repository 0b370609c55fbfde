package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// 端点分组
const (
	EndpointExecute = "indexer:execute"
	EndpointStep    = "indexer:step"
	EndpointDebug   = "indexer:debug"
	EndpointGeneral = "indexer:general"
)

// PerMinute 每分钟 n 次，允许一次性用完 burst
func PerMinute(n, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), burst)
}

// RateLimitManager 按端点分组的速率限制
type RateLimitManager struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewRateLimitManager 使用 indexer 的默认限额
func NewRateLimitManager() *RateLimitManager {
	return &RateLimitManager{limiters: map[string]*rate.Limiter{
		EndpointExecute: PerMinute(120, 10),
		EndpointStep:    PerMinute(120, 10),
		EndpointDebug:   PerMinute(600, 50),
		EndpointGeneral: PerMinute(1200, 100),
	}}
}

// Unlimited 测试与本地 indexer 使用
func Unlimited() *RateLimitManager {
	return &RateLimitManager{limiters: map[string]*rate.Limiter{
		EndpointGeneral: rate.NewLimiter(rate.Inf, 0),
	}}
}

// SetLimiter 覆盖某个端点的限制器
func (rlm *RateLimitManager) SetLimiter(endpoint string, l *rate.Limiter) {
	rlm.mu.Lock()
	rlm.limiters[endpoint] = l
	rlm.mu.Unlock()
}

// GetLimiter 未配置的端点使用通用限制器
func (rlm *RateLimitManager) GetLimiter(endpoint string) *rate.Limiter {
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()
	if l, ok := rlm.limiters[endpoint]; ok {
		return l
	}
	if l, ok := rlm.limiters[EndpointGeneral]; ok {
		return l
	}
	return rate.NewLimiter(rate.Inf, 0)
}

// Wait 等待直到允许请求；ctx 截止前拿不到令牌时立即返回错误
func (rlm *RateLimitManager) Wait(ctx context.Context, endpoint string) error {
	return rlm.GetLimiter(endpoint).Wait(ctx)
}

// Allow 检查是否允许请求
func (rlm *RateLimitManager) Allow(endpoint string) bool {
	return rlm.GetLimiter(endpoint).Allow()
}

// GetRemaining 当前可立即使用的令牌数
func (rlm *RateLimitManager) GetRemaining(endpoint string) int {
	return int(rlm.GetLimiter(endpoint).Tokens())
}
