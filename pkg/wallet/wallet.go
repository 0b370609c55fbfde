// Package wallet 加载签名私钥：十六进制私钥、助记词派生或本地加密库
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/betbot/gorouter/pkg/secretstore"
)

// DefaultDerivationPath 第一个以太坊账户
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// ErrNoSigner 没有配置任何私钥来源
var ErrNoSigner = errors.New("wallet: no signer configured")

// Source 私钥来源，按 PrivateKey → Mnemonic → 加密库 的顺序取第一个非空项
type Source struct {
	PrivateKey     string
	Mnemonic       string
	DerivationPath string

	StorePath string // Badger 目录
	StoreKey  []byte // 32 字节加密密钥
	StoreName string // 库中的账户名
}

// Load 返回签名私钥
func Load(src Source) (*ecdsa.PrivateKey, error) {
	if pk := strings.TrimSpace(src.PrivateKey); pk != "" {
		return FromHex(pk)
	}
	if mn := strings.TrimSpace(src.Mnemonic); mn != "" {
		return Derive(mn, src.DerivationPath)
	}
	if strings.TrimSpace(src.StorePath) != "" && src.StoreName != "" {
		return fromStore(src)
	}
	return nil, ErrNoSigner
}

// FromHex 解析十六进制私钥（可带 0x）
func FromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// Derive 从助记词派生；path 为空时使用 DefaultDerivationPath
func Derive(mnemonic, derivationPath string) (*ecdsa.PrivateKey, error) {
	derivationPath = strings.TrimSpace(derivationPath)
	if derivationPath == "" {
		derivationPath = DefaultDerivationPath
	}
	w, err := hdwallet.NewFromMnemonic(strings.TrimSpace(mnemonic))
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation_path: %w", err)
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("derive failed: %w", err)
	}
	key, err := w.PrivateKey(acct)
	if err != nil {
		return nil, fmt.Errorf("private key failed: %w", err)
	}
	return key, nil
}

func fromStore(src Source) (*ecdsa.PrivateKey, error) {
	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          src.StorePath,
		EncryptionKey: src.StoreKey,
		ReadOnly:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	defer ss.Close()

	if pk, ok, err := ss.PrivateKey(src.StoreName); err != nil {
		return nil, err
	} else if ok && pk != "" {
		return FromHex(pk)
	}
	mn, ok, err := ss.Mnemonic(src.StoreName)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(mn) == "" {
		return nil, fmt.Errorf("%w: signer %q not found in secret store", ErrNoSigner, src.StoreName)
	}
	return Derive(mn, src.DerivationPath)
}
