// Package secretstore 本地加密 KV（Badger），保存签名私钥与助记词
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotOpened Store 未打开
var ErrNotOpened = errors.New("secretstore: not opened")

// Store 加密由 Badger 选项提供（value log + key registry），不在本层实现
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes；为空时不加密
	ReadOnly      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// 加密库需要 index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20) // 100MB
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normalizeKey(key string) ([]byte, error) {
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return nil, errors.New("secretstore: key is empty")
	}
	return k, nil
}

// GetString 第二个返回值区分不存在与空值
func (s *Store) GetString(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, ErrNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return "", false, err
	}
	var (
		out   string
		found bool
	)
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return out, found, nil
}

func (s *Store) SetString(key string, val string) error {
	if s == nil || s.db == nil {
		return ErrNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(val))
	})
}

func (s *Store) Delete(key string) error {
	if s == nil || s.db == nil {
		return ErrNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// Keys 列出指定前缀的 key（只读 key，不取 value）
func (s *Store) Keys(prefix string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpened
	}
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// 签名账户的 key 布局：signer/<name>/private_key、signer/<name>/mnemonic
const signerPrefix = "signer/"

func signerKey(name, field string) string {
	return signerPrefix + strings.TrimSpace(name) + "/" + field
}

// PutPrivateKey 保存十六进制私钥（可带 0x）
func (s *Store) PutPrivateKey(name, hexKey string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("secretstore: signer name is empty")
	}
	return s.SetString(signerKey(name, "private_key"), strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
}

// PrivateKey 读取私钥，不存在时 found=false
func (s *Store) PrivateKey(name string) (string, bool, error) {
	return s.GetString(signerKey(name, "private_key"))
}

// PutMnemonic 保存助记词
func (s *Store) PutMnemonic(name, mnemonic string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("secretstore: signer name is empty")
	}
	return s.SetString(signerKey(name, "mnemonic"), strings.Join(strings.Fields(mnemonic), " "))
}

// Mnemonic 读取助记词
func (s *Store) Mnemonic(name string) (string, bool, error) {
	return s.GetString(signerKey(name, "mnemonic"))
}

// Signers 已保存的账户名
func (s *Store) Signers() ([]string, error) {
	keys, err := s.Keys(signerPrefix)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, signerPrefix)
		name, _, ok := strings.Cut(rest, "/")
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// ParseKey 32 字节加密密钥，接受 hex（可带 0x）或 base64；空串返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
