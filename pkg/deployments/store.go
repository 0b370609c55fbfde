// Package deployments 记录合约部署地址 {contractName: {version: {chainId: address}}}，
// 并按目标批量部署
package deployments

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Record 一条部署记录
type Record struct {
	Contract string
	Version  string
	ChainID  int64
	Address  common.Address
}

// Store 部署记录文件，每次 Put 后整文件原子替换
type Store struct {
	path string
	mu   sync.Mutex
	data map[string]map[string]map[string]string
}

// Open 文件不存在时返回空记录
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: map[string]map[string]map[string]string{}}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取部署记录失败: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("解析部署记录 %s 失败: %w", path, err)
	}
	return s, nil
}

// Path 记录文件路径
func (s *Store) Path() string { return s.path }

// Lookup 查询指定链上的部署地址
func (s *Store) Lookup(contract, version string, chainID int64) (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.data[contract][version][strconv.FormatInt(chainID, 10)]
	if !ok || !common.IsHexAddress(addr) {
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}

// Put 写入一条记录（地址小写）并落盘
func (s *Store) Put(contract, version string, chainID int64, addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[contract] == nil {
		s.data[contract] = map[string]map[string]string{}
	}
	if s.data[contract][version] == nil {
		s.data[contract][version] = map[string]string{}
	}
	s.data[contract][version][strconv.FormatInt(chainID, 10)] = strings.ToLower(addr.Hex())
	return s.flush()
}

// Records 按合约、版本、链 id 排序
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for contract, versions := range s.data {
		for version, chains := range versions {
			for chain, addr := range chains {
				id, err := strconv.ParseInt(chain, 10, 64)
				if err != nil {
					continue
				}
				out = append(out, Record{Contract: contract, Version: version, ChainID: id, Address: common.HexToAddress(addr)})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Contract != out[j].Contract {
			return out[i].Contract < out[j].Contract
		}
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].ChainID < out[j].ChainID
	})
	return out
}

// flush 先写同目录临时文件再 rename
func (s *Store) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化部署记录失败: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("替换部署记录失败: %w", err)
	}
	return nil
}
