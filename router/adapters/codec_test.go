package adapters

import (
	"math/big"
	"testing"
	"testing/quick"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, s)
	return v
}

func TestDecodeBatchSignedData1(t *testing.T) {
	cases := []struct {
		word        string
		startNonce  uint64
		v           uint8
		listingTime uint32
		maker       string
	}{
		{
			word:        "227923271356413363720383248216206753813096028913671505843204875552180673536",
			startNonce:  141836999983105,
			v:           28,
			listingTime: 1715526658,
			maker:       "0xdb2ab5671bf17ca408fe75e90571fbe675d01c00",
		},
		{
			word:        "1785204137870620370265271350606216716660245517675585432722432",
			startNonce:  1,
			v:           28,
			listingTime: 1715526658,
			maker:       "0xdb2ab5671bf17ca408fe75e90571fbe675d01c00",
		},
		{
			word:        "227923271356413363720389891345235669433582323178281326037610431577351160477",
			startNonce:  141836999983105,
			v:           28,
			listingTime: 1715531204,
			maker:       "0x44faeae7c2ad86097200a49d5707a74389e6829d",
		},
	}
	for _, tc := range cases {
		word := mustBig(t, tc.word)
		d, err := DecodeBatchSignedData1(word)
		require.NoError(t, err)
		assert.Equal(t, tc.startNonce, d.StartNonce)
		assert.Equal(t, tc.v, d.V)
		assert.Equal(t, tc.listingTime, d.ListingTime)
		assert.Equal(t, common.HexToAddress(tc.maker), d.Maker)

		back, err := d.Encode()
		require.NoError(t, err)
		assert.Zero(t, word.Cmp(back), "encode(decode(x)) != x")
	}
}

func TestBatchSignedData1Rejects(t *testing.T) {
	_, err := DecodeBatchSignedData1(new(big.Int).Lsh(big.NewInt(1), 256))
	require.Error(t, err)
	_, err = DecodeBatchSignedData1(big.NewInt(-1))
	require.Error(t, err)

	_, err = BatchSignedData1{StartNonce: 1 << 56}.Encode()
	require.Error(t, err)
}

func TestBatchSignedData1Property(t *testing.T) {
	f := func(maker [20]byte, listing uint32, v uint8, nonce uint64) bool {
		d := BatchSignedData1{Maker: common.Address(maker), ListingTime: listing, V: v, StartNonce: nonce & (1<<56 - 1)}
		word, err := d.Encode()
		if err != nil {
			return false
		}
		got, err := DecodeBatchSignedData1(word)
		return err == nil && got == d
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestPackExpiry(t *testing.T) {
	packed := PackExpiry(1715526658, 1715613058)
	want := new(big.Int).Lsh(big.NewInt(1715526658), 32)
	want.Add(want, big.NewInt(1715613058))
	assert.Zero(t, packed.Cmp(want))

	listing, exp := UnpackExpiry(packed)
	assert.Equal(t, int64(1715526658), listing)
	assert.Equal(t, int64(1715613058), exp)
}

func TestMerkleProofs(t *testing.T) {
	ids := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(10), big.NewInt(77)}
	tree := NewMerkleTree(ids)
	root := tree.Root()
	require.NotEqual(t, common.Hash{}, root)

	for _, id := range ids {
		proof, err := tree.Proof(id)
		require.NoError(t, err)
		assert.True(t, VerifyProof(root, id, proof), "token %s", id)
	}
	_, err := tree.Proof(big.NewInt(4))
	require.Error(t, err)

	proof, err := tree.Proof(big.NewInt(1))
	require.NoError(t, err)
	assert.False(t, VerifyProof(root, big.NewInt(2), proof))

	// 输入顺序不影响树根
	shuffled := NewMerkleTree([]*big.Int{big.NewInt(77), big.NewInt(3), big.NewInt(1), big.NewInt(10), big.NewInt(2)})
	assert.Equal(t, root, shuffled.Root())
}

func TestMerkleSingleLeaf(t *testing.T) {
	tree := NewMerkleTree([]*big.Int{big.NewInt(5)})
	assert.Equal(t, TokenLeaf(big.NewInt(5)), tree.Root())
	proof, err := tree.Proof(big.NewInt(5))
	require.NoError(t, err)
	assert.Empty(t, proof)
	assert.Equal(t, common.Hash{}, NewMerkleTree(nil).Root())
}

func TestRaribleIDs(t *testing.T) {
	cases := map[string]string{
		"ETH":     "0xaaaebeba",
		"ERC20":   "0x8ae85d84",
		"ERC721":  "0x73ad2146",
		"ERC1155": "0x973bb640",
		"V1":      "0x4c234266",
		"V2":      "0x23d235ef",
		"V3_SELL": "0x2fa3cfd3",
		"V3_BUY":  "0x1b18cdf6",
	}
	for name, want := range cases {
		id := RaribleID(name)
		assert.Equal(t, want, hexutil.Encode(id[:]), name)
	}
}

func TestRemainingShareSumsToTotal(t *testing.T) {
	f := func(total uint64, qty uint8, cuts []uint8) bool {
		quantity := uint64(qty%50) + 1
		amount := new(big.Int).SetUint64(total)
		var filled uint64
		sum := new(big.Int)
		for _, c := range cuts {
			if filled == quantity {
				break
			}
			fill := uint64(c)%(quantity-filled) + 1
			sum.Add(sum, remainingShare(amount, quantity, filled, fill))
			filled += fill
		}
		if filled < quantity {
			sum.Add(sum, remainingShare(amount, quantity, filled, quantity-filled))
		}
		return sum.Cmp(amount) == 0
	}
	require.NoError(t, quick.Check(f, nil))
}
