package risk

import (
	"errors"
	"strings"

	"github.com/betbot/copybot/pkg/fetch"
)

// Kind 拒单分类
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkError
	KindVenueBlock
	KindBusinessRejection
)

func (k Kind) String() string {
	switch k {
	case KindNetworkError:
		return "network_error"
	case KindVenueBlock:
		return "venue_block"
	case KindBusinessRejection:
		return "business_rejection"
	default:
		return "unknown"
	}
}

// Rejection 一次失败的下单/请求，分类器的输入
type Rejection struct {
	Status     int
	StatusText string
	Message    string // 交易所返回的错误信息
	Body       string // 原始响应体
	Err        error  // 传输层错误
}

// Classification 分类结果
type Classification struct {
	Kind              Kind
	InsufficientFunds bool
	Reason            string
}

// Classifier 可替换的分类函数
type Classifier func(Rejection) Classification

// BlockFingerprints 拦截页特征（小写子串匹配）
var BlockFingerprints = []string{
	"<!doctype html",
	"cloudflare",
	"you have been blocked",
	"attention required",
}

// FundsFingerprints 余额/授权不足特征
var FundsFingerprints = []string{
	"not enough balance",
	"allowance",
}

func containsAny(s string, subs []string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// IsBlocked 是否为交易所风控拦截
func IsBlocked(r Rejection) bool {
	if r.Status == 403 || r.StatusText == "Forbidden" {
		return true
	}
	if containsAny(r.Body, BlockFingerprints) || containsAny(r.Message, BlockFingerprints) {
		return true
	}
	if r.Err != nil && containsAny(r.Err.Error(), BlockFingerprints) {
		return true
	}
	return false
}

// IsInsufficientFunds 是否为余额或授权不足
func IsInsufficientFunds(msg string) bool {
	return containsAny(msg, FundsFingerprints)
}

// DefaultClassifier 默认分类：拦截 > 网络 > 余额不足 > 未知
func DefaultClassifier(r Rejection) Classification {
	if IsBlocked(r) {
		return Classification{Kind: KindVenueBlock, Reason: "venue block"}
	}
	if r.Err != nil && r.Status == 0 {
		var ne *fetch.NetworkError
		if errors.As(r.Err, &ne) {
			return Classification{Kind: KindNetworkError, Reason: ne.Code}
		}
		return Classification{Kind: KindNetworkError, Reason: r.Err.Error()}
	}
	if IsInsufficientFunds(r.Message) {
		return Classification{Kind: KindBusinessRejection, InsufficientFunds: true, Reason: r.Message}
	}
	reason := r.Message
	if reason == "" {
		reason = r.StatusText
	}
	return Classification{Kind: KindUnknown, Reason: reason}
}
