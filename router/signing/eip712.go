package signing

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/betbot/gorouter/router/types"
)

// NewDomain 构建 EIP712 域
func NewDomain(name, version string, chainID int64, verifyingContract common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              name,
		Version:           version,
		ChainId:           math.NewHexOrDecimal256(chainID),
		VerifyingContract: verifyingContract.Hex(),
	}
}

// DomainType 根据域中实际存在的字段生成 EIP712Domain 类型
// 字段必须与 Domain.Map() 一致，否则 HashStruct 会报 extra data
func DomainType(domain apitypes.TypedDataDomain) []apitypes.Type {
	fields := make([]apitypes.Type, 0, 5)
	if domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}

// NewTypedData 组装 TypedData，自动补 EIP712Domain
func NewTypedData(domain apitypes.TypedDataDomain, primaryType string, typeDefs apitypes.Types, message apitypes.TypedDataMessage) *apitypes.TypedData {
	all := make(apitypes.Types, len(typeDefs)+1)
	for name, fields := range typeDefs {
		all[name] = fields
	}
	all["EIP712Domain"] = DomainType(domain)
	return &apitypes.TypedData{
		Types:       all,
		PrimaryType: primaryType,
		Domain:      domain,
		Message:     message,
	}
}

// Hash 计算 EIP712 摘要 keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(message))
func Hash(td *apitypes.TypedData) (common.Hash, error) {
	if td == nil {
		return common.Hash{}, fmt.Errorf("%w: nil typed data", types.ErrInvalidArgument)
	}
	hash, _, err := apitypes.TypedDataAndHash(*td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("计算 EIP712 哈希失败: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// StructHash 只计算 message 的 hashStruct
func StructHash(td *apitypes.TypedData) (common.Hash, error) {
	h, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("计算消息哈希失败: %w", err)
	}
	return common.BytesToHash(h), nil
}

// SignHash 对摘要签名，返回 r ‖ s ‖ v，v 为 27/28
func SignHash(key *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSignature, err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// SignTypedData 签名 TypedData，返回签名与摘要
func SignTypedData(key *ecdsa.PrivateKey, td *apitypes.TypedData) ([]byte, common.Hash, error) {
	hash, err := Hash(td)
	if err != nil {
		return nil, common.Hash{}, err
	}
	sig, err := SignHash(key, hash)
	if err != nil {
		return nil, common.Hash{}, err
	}
	return sig, hash, nil
}

// RecoverHash 从摘要和签名恢复签名者，v 接受 0/1/27/28
func RecoverHash(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature length %d", types.ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", types.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Recover 恢复 TypedData 的签名者
func Recover(td *apitypes.TypedData, sig []byte) (common.Address, error) {
	hash, err := Hash(td)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverHash(hash, sig)
}

// SplitSignature 拆分 v / r / s
func SplitSignature(sig []byte) (v uint8, r, s common.Hash, err error) {
	if len(sig) != crypto.SignatureLength {
		return 0, common.Hash{}, common.Hash{}, fmt.Errorf("%w: signature length %d", types.ErrInvalidSignature, len(sig))
	}
	v = sig[64]
	if v < 27 {
		v += 27
	}
	return v, common.BytesToHash(sig[:32]), common.BytesToHash(sig[32:64]), nil
}

// JoinSignature r ‖ s ‖ v
func JoinSignature(v uint8, r, s common.Hash) []byte {
	sig := make([]byte, 0, crypto.SignatureLength)
	sig = append(sig, r.Bytes()...)
	sig = append(sig, s.Bytes()...)
	return append(sig, v)
}

// AddressOf 私钥对应地址
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// PrivateKeyFromHex 解析十六进制私钥，允许 0x 前缀
func PrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	if len(hexKey) >= 2 && (hexKey[:2] == "0x" || hexKey[:2] == "0X") {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return key, nil
}

// Encode 0x 十六进制
func Encode(b []byte) string {
	return hexutil.Encode(b)
}

// Uint 构造 TypedData 中的整数字段
func Uint(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// BigOrZero nil 视为 0
func BigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
