package adapters

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/gorouter/router/types"
)

// BatchSignedData1 Element 批量签名订单的 data1 字段
//
//	bits   0..159  maker
//	bits 160..191  listingTime (uint32)
//	bits 192..199  signature v (uint8)
//	bits 200..255  startNonce (uint56)
type BatchSignedData1 struct {
	Maker       common.Address
	ListingTime uint32
	V           uint8
	StartNonce  uint64
}

var (
	mask8   = big.NewInt(0xff)
	mask32  = big.NewInt(0xffffffff)
	mask56  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 56), big.NewInt(1))
	mask160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
	max256  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// DecodeBatchSignedData1 按固定位偏移拆分 data1
func DecodeBatchSignedData1(word *big.Int) (BatchSignedData1, error) {
	if word == nil || word.Sign() < 0 || word.Cmp(max256) > 0 {
		return BatchSignedData1{}, types.InvalidArgf("data1 is not a uint256")
	}
	maker := new(big.Int).And(word, mask160)
	listing := new(big.Int).Rsh(word, 160)
	listing.And(listing, mask32)
	v := new(big.Int).Rsh(word, 192)
	v.And(v, mask8)
	nonce := new(big.Int).Rsh(word, 200)
	return BatchSignedData1{
		Maker:       common.BigToAddress(maker),
		ListingTime: uint32(listing.Uint64()),
		V:           uint8(v.Uint64()),
		StartNonce:  nonce.Uint64(),
	}, nil
}

// Encode 按相同布局打包，startNonce 超过 56 位时报错
func (d BatchSignedData1) Encode() (*big.Int, error) {
	nonce := new(big.Int).SetUint64(d.StartNonce)
	if nonce.Cmp(mask56) > 0 {
		return nil, types.InvalidArgf("startNonce %d does not fit in 56 bits", d.StartNonce)
	}
	word := new(big.Int).Lsh(nonce, 200)
	word.Or(word, new(big.Int).Lsh(big.NewInt(int64(d.V)), 192))
	word.Or(word, new(big.Int).Lsh(new(big.Int).SetUint64(uint64(d.ListingTime)), 160))
	word.Or(word, new(big.Int).SetBytes(d.Maker.Bytes()))
	return word, nil
}

// PackExpiry Element / ZeroEx 的 expiry：高位 listingTime，低 32 位 expirationTime
func PackExpiry(listingTime, expirationTime int64) *big.Int {
	v := new(big.Int).Lsh(big.NewInt(listingTime), 32)
	return v.Or(v, big.NewInt(expirationTime&0xffffffff))
}

// UnpackExpiry PackExpiry 的逆运算
func UnpackExpiry(expiry *big.Int) (listingTime, expirationTime int64) {
	exp := new(big.Int).And(expiry, mask32)
	listing := new(big.Int).Rsh(expiry, 32)
	listing.And(listing, mask32)
	return listing.Int64(), exp.Int64()
}
