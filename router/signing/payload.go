package signing

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/betbot/gorouter/router/types"
)

// PayloadTypedData 把 indexer 下发的 {domain, types, value} 转换为 TypedData
// types 不含 EIP712Domain，primaryType 缺省时取唯一未被其它类型引用的类型
func PayloadTypedData(p *types.SignPayload) (*apitypes.TypedData, error) {
	if p == nil || len(p.Types) == 0 {
		return nil, fmt.Errorf("%w: empty sign payload", types.ErrInvalidArgument)
	}
	domain, err := payloadDomain(p.Domain)
	if err != nil {
		return nil, err
	}
	typeDefs := make(apitypes.Types, len(p.Types))
	for name, fields := range p.Types {
		if name == "EIP712Domain" {
			continue
		}
		defs := make([]apitypes.Type, 0, len(fields))
		for _, f := range fields {
			defs = append(defs, apitypes.Type{Name: f.Name, Type: f.Type})
		}
		typeDefs[name] = defs
	}
	primary := p.PrimaryType
	if primary == "" {
		primary, err = InferPrimaryType(typeDefs)
		if err != nil {
			return nil, err
		}
	}
	msg, ok := normalizeValue(p.Value).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: sign value is not an object", types.ErrInvalidArgument)
	}
	return NewTypedData(domain, primary, typeDefs, msg), nil
}

// InferPrimaryType 找出唯一一个没有被其它类型引用的类型
func InferPrimaryType(typeDefs apitypes.Types) (string, error) {
	referenced := make(map[string]bool)
	for _, fields := range typeDefs {
		for _, f := range fields {
			referenced[f.Type[:baseLen(f.Type)]] = true
		}
	}
	var candidates []string
	for name := range typeDefs {
		if name != "EIP712Domain" && !referenced[name] {
			candidates = append(candidates, name)
		}
	}
	sort.Strings(candidates)
	if len(candidates) != 1 {
		return "", fmt.Errorf("%w: ambiguous primary type %v", types.ErrInvalidArgument, candidates)
	}
	return candidates[0], nil
}

// baseLen 去掉数组后缀 "[]" / "[N]"
func baseLen(t string) int {
	if i := strings.IndexByte(t, '['); i >= 0 {
		return i
	}
	return len(t)
}

func payloadDomain(m map[string]any) (apitypes.TypedDataDomain, error) {
	var d apitypes.TypedDataDomain
	if v, ok := m["name"].(string); ok {
		d.Name = v
	}
	if v, ok := m["version"].(string); ok {
		d.Version = v
	}
	if raw, ok := m["chainId"]; ok && raw != nil {
		id, err := toBig(raw)
		if err != nil {
			return d, fmt.Errorf("%w: domain chainId: %v", types.ErrInvalidArgument, err)
		}
		d.ChainId = (*gethmath.HexOrDecimal256)(id)
	}
	if v, ok := m["verifyingContract"].(string); ok {
		if !common.IsHexAddress(v) {
			return d, fmt.Errorf("%w: domain verifyingContract %q", types.ErrInvalidArgument, v)
		}
		d.VerifyingContract = common.HexToAddress(v).Hex()
	}
	if v, ok := m["salt"].(string); ok {
		d.Salt = v
	}
	return d, nil
}

// normalizeValue JSON 数字转为 *big.Int，数组转为 []interface{}
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = normalizeValue(inner)
		}
		return out
	case []any:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = normalizeValue(inner)
		}
		return out
	case json.Number:
		if b, ok := new(big.Int).SetString(val.String(), 10); ok {
			return b
		}
		return val.String()
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return big.NewInt(int64(val))
		}
		return val
	default:
		return v
	}
}

func toBig(v any) (*big.Int, error) {
	switch val := v.(type) {
	case float64:
		return big.NewInt(int64(val)), nil
	case json.Number:
		return types.ParseQuantity(val.String())
	case string:
		return types.ParseQuantity(val)
	case *big.Int:
		return val, nil
	default:
		return nil, fmt.Errorf("unexpected %T", v)
	}
}

// SignPayload 对 indexer 的签名步骤签名，返回 0x 签名
func SignPayload(key *ecdsa.PrivateKey, p *types.SignPayload) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: nil sign payload", types.ErrInvalidArgument)
	}
	switch p.SignatureKind {
	case types.SignatureKindEIP191:
		sig, err := SignMessage(key, p.Message)
		if err != nil {
			return "", err
		}
		return hexutil.Encode(sig), nil
	case types.SignatureKindEIP712, "":
		td, err := PayloadTypedData(p)
		if err != nil {
			return "", err
		}
		sig, _, err := SignTypedData(key, td)
		if err != nil {
			return "", err
		}
		return hexutil.Encode(sig), nil
	default:
		return "", fmt.Errorf("%w: signature kind %q", types.ErrInvalidArgument, p.SignatureKind)
	}
}

// MessageBytes 0x 开头且合法的十六进制按字节签名，否则按 UTF-8 文本
func MessageBytes(message string) []byte {
	if strings.HasPrefix(message, "0x") {
		if b, err := hexutil.Decode(message); err == nil {
			return b
		}
	}
	return []byte(message)
}

// SignMessage EIP-191 personal_sign
func SignMessage(key *ecdsa.PrivateKey, message string) ([]byte, error) {
	return SignHash(key, common.BytesToHash(accounts.TextHash(MessageBytes(message))))
}

// RecoverMessage 恢复 EIP-191 签名者
func RecoverMessage(message string, sig []byte) (common.Address, error) {
	return RecoverHash(common.BytesToHash(accounts.TextHash(MessageBytes(message))), sig)
}
