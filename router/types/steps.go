package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// StepKind 步骤类型
type StepKind string

const (
	StepKindTransaction StepKind = "transaction"
	StepKindSignature   StepKind = "signature"
)

// StepStatus 步骤条目状态
type StepStatus string

const (
	StepComplete   StepStatus = "complete"
	StepIncomplete StepStatus = "incomplete"
)

// SignatureKind 签名方式
type SignatureKind string

const (
	SignatureKindEIP712 SignatureKind = "eip712"
	SignatureKindEIP191 SignatureKind = "eip191"
)

// SignPayload indexer 下发的待签名数据（ethers 风格）
type SignPayload struct {
	SignatureKind SignatureKind              `json:"signatureKind"`
	Domain        map[string]any             `json:"domain,omitempty"`
	Types         map[string][]TypedDataField `json:"types,omitempty"`
	Value         map[string]any             `json:"value,omitempty"`
	PrimaryType   string                     `json:"primaryType,omitempty"`
	Message       string                     `json:"message,omitempty"`
}

// TypedDataField EIP-712 类型字段
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// PostPayload 签名后的回调
type PostPayload struct {
	Endpoint string          `json:"endpoint"`
	Method   string          `json:"method"`
	Body     json.RawMessage `json:"body"`
}

// StepItemData transaction 条目使用 From/To/Data/Value，signature 条目使用 Sign/Post
type StepItemData struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
	Gas   string `json:"gas,omitempty"`

	Sign *SignPayload `json:"sign,omitempty"`
	Post *PostPayload `json:"post,omitempty"`
}

// StepItem 步骤条目
type StepItem struct {
	Status       StepStatus    `json:"status"`
	OrderIndexes []int         `json:"orderIndexes,omitempty"`
	Data         *StepItemData `json:"data,omitempty"`
}

// Step 步骤
type Step struct {
	ID          string     `json:"id"`
	Action      string     `json:"action"`
	Description string     `json:"description"`
	Kind        StepKind   `json:"kind"`
	Items       []StepItem `json:"items"`
}

// StepError indexer 对某个条目的报错
type StepError struct {
	Message    string `json:"message"`
	OrderIndex int    `json:"orderIndex"`
}

// StepSequence execute 接口返回
type StepSequence struct {
	Steps  []Step          `json:"steps"`
	Errors []StepError     `json:"errors,omitempty"`
	Path   json.RawMessage `json:"path,omitempty"`
}

// StepResult 已处理条目的结果
type StepResult struct {
	StepID string `json:"step"`
	Result any    `json:"result"`
}

// ParseQuantity 解析十进制或 0x 十六进制的数量字符串
func ParseQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
		if s == "" {
			return new(big.Int), nil
		}
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: quantity %q", ErrInvalidArgument, s)
	}
	return v, nil
}
