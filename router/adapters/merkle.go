package adapters

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/betbot/gorouter/router/types"
)

// MerkleTree token 列表订单的 merkle 树
// 叶子 = keccak256(uint256 tokenId)，叶子排序后逐层按字节序两两哈希，奇数节点直接上提
type MerkleTree struct {
	layers [][]common.Hash
}

// TokenLeaf 叶子哈希
func TokenLeaf(tokenID *big.Int) common.Hash {
	return crypto.Keccak256Hash(math.U256Bytes(new(big.Int).Set(tokenID)))
}

// NewMerkleTree 构建 merkle 树
func NewMerkleTree(tokenIDs []*big.Int) *MerkleTree {
	leaves := make([]common.Hash, 0, len(tokenIDs))
	seen := make(map[common.Hash]bool, len(tokenIDs))
	for _, id := range tokenIDs {
		leaf := TokenLeaf(id)
		if !seen[leaf] {
			seen[leaf] = true
			leaves = append(leaves, leaf)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i][:], leaves[j][:]) < 0 })

	t := &MerkleTree{layers: [][]common.Hash{leaves}}
	for layer := leaves; len(layer) > 1; {
		next := make([]common.Hash, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				next = append(next, layer[i])
				continue
			}
			next = append(next, hashPair(layer[i], layer[i+1]))
		}
		t.layers = append(t.layers, next)
		layer = next
	}
	return t
}

// Root 树根，空列表返回零值
func (t *MerkleTree) Root() common.Hash {
	top := t.layers[len(t.layers)-1]
	if len(top) == 0 {
		return common.Hash{}
	}
	return top[0]
}

// Proof 生成 tokenId 的 merkle proof
func (t *MerkleTree) Proof(tokenID *big.Int) ([]common.Hash, error) {
	leaf := TokenLeaf(tokenID)
	idx := -1
	for i, l := range t.layers[0] {
		if l == leaf {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, types.InvalidArgf("token %s is not in the token list", tokenID)
	}
	var proof []common.Hash
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := idx ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

// VerifyProof 校验 proof
func VerifyProof(root common.Hash, tokenID *big.Int, proof []common.Hash) bool {
	node := TokenLeaf(tokenID)
	for _, p := range proof {
		node = hashPair(node, p)
	}
	return node == root
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}
