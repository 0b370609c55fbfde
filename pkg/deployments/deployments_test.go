package deployments

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gorouter/router/types"
)

var (
	routerAddr = common.HexToAddress("0x00000000000000000000000000000000000000Ab")
	conduitCtl = common.HexToAddress("0x00000000F9490004C11Cef243f5400493c00Ad63")
)

type fakeDeployer struct {
	next  byte
	calls []string
	fail  map[string]error
}

func (f *fakeDeployer) Deploy(_ context.Context, contract, version string, _ []any) (common.Address, error) {
	f.calls = append(f.calls, contract+"@"+version)
	if err := f.fail[contract]; err != nil {
		return common.Address{}, err
	}
	f.next++
	return common.BytesToAddress([]byte{0xde, f.next}), nil
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	s, err := Open(path)
	require.NoError(t, err)
	_, ok := s.Lookup("ReservoirV6_0_1", "v3", 1)
	assert.False(t, ok)

	require.NoError(t, s.Put("ReservoirV6_0_1", "v3", 1, routerAddr))
	require.NoError(t, s.Put("ReservoirApprovalProxy", "v1", 137, conduitCtl))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"0x00000000000000000000000000000000000000ab"`)
	assert.Contains(t, string(raw), `"137": "0x00000000f9490004c11cef243f5400493c00ad63"`)

	again, err := Open(path)
	require.NoError(t, err)
	addr, ok := again.Lookup("ReservoirV6_0_1", "v3", 1)
	require.True(t, ok)
	assert.Equal(t, routerAddr, addr)
	_, ok = again.Lookup("ReservoirV6_0_1", "v3", 10)
	assert.False(t, ok)

	recs := again.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "ReservoirApprovalProxy", recs[0].Contract)
	assert.Equal(t, int64(1), recs[1].ChainID)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestOpenRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestRunnerDeploy(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "deployments.json"))
	require.NoError(t, err)
	d := &fakeDeployer{}
	r := NewRunner(s, d, 8453)
	ctx := context.Background()

	addr, err := r.Deploy(ctx, Target{Contract: "ReservoirApprovalProxy", Version: "v1", Args: []any{conduitCtl, routerAddr}})
	require.NoError(t, err)
	got, ok := s.Lookup("ReservoirApprovalProxy", "v1", 8453)
	require.True(t, ok)
	assert.Equal(t, addr, got)

	_, err = r.Deploy(ctx, Target{Contract: "ReservoirApprovalProxy", Version: "v1", Args: []any{conduitCtl, routerAddr}})
	assert.ErrorIs(t, err, ErrAlreadyDeployed)
	assert.Len(t, d.calls, 1)
}

func TestRunnerRejectsZeroArgs(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "deployments.json"))
	require.NoError(t, err)
	d := &fakeDeployer{}
	r := NewRunner(s, d, 1)

	for _, arg := range []any{nil, common.Address{}, common.Hash{}, "", big.NewInt(0), false} {
		_, err := r.Deploy(context.Background(), Target{Contract: "PermitProxy", Version: "v2", Args: []any{routerAddr, arg}})
		assert.ErrorIs(t, err, types.ErrInvalidArgument, "%v", arg)
	}
	assert.Empty(t, d.calls)
}

func TestRunAllContinuesPastFailures(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "deployments.json"))
	require.NoError(t, err)
	boom := errors.New("out of gas")
	d := &fakeDeployer{fail: map[string]error{"PermitProxy": boom}}
	r := NewRunner(s, d, 10)

	failures := r.RunAll(context.Background(), []Target{
		{Contract: "ReservoirV6_0_1", Version: "v3"},
		{Contract: "PermitProxy", Version: "v2", Args: []any{routerAddr}},
		{Contract: "ReservoirApprovalProxy", Version: "v1", Args: []any{common.Address{}}},
		{Contract: "SeaportModule", Version: "v1", Args: []any{routerAddr}},
	})
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures[0].Err, boom)
	assert.ErrorIs(t, failures[1].Err, types.ErrInvalidArgument)
	assert.Equal(t, []string{"ReservoirV6_0_1@v3", "PermitProxy@v2", "SeaportModule@v1"}, d.calls)
	assert.Len(t, s.Records(), 2)
}

func TestRunAllStopsDeployingAfterCancel(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "deployments.json"))
	require.NoError(t, err)
	d := &fakeDeployer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failures := NewRunner(s, d, 1).RunAll(ctx, []Target{{Contract: "A", Version: "v1"}, {Contract: "B", Version: "v1"}})
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures[1].Err, context.Canceled)
	assert.Empty(t, d.calls)
}

type fakeCreator struct{ code []byte }

func (f *fakeCreator) DeployContract(_ context.Context, code []byte) (common.Address, *types.Receipt, error) {
	f.code = code
	return routerAddr, &types.Receipt{}, nil
}

const approvalProxyArtifact = `{
  "contractName": "ReservoirApprovalProxy",
  "abi": [{"type":"constructor","inputs":[{"name":"_conduitController","type":"address"},{"name":"_router","type":"address"}]}],
  "bytecode": "0x6080604052"
}`

func TestArtifactDeployer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ReservoirApprovalProxy.json"), []byte(approvalProxyArtifact), 0o644))
	creator := &fakeCreator{}
	d := NewArtifactDeployer(dir, creator)

	addr, err := d.Deploy(context.Background(), "ReservoirApprovalProxy", "v1", []any{conduitCtl, routerAddr})
	require.NoError(t, err)
	assert.Equal(t, routerAddr, addr)
	require.Len(t, creator.code, 5+64)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, creator.code[:5])
	assert.Equal(t, conduitCtl.Bytes(), creator.code[5+12:5+32])

	_, err = d.Deploy(context.Background(), "ReservoirApprovalProxy", "v1", []any{conduitCtl})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = d.Deploy(context.Background(), "Missing", "v1", nil)
	assert.Error(t, err)
}

func TestParseArgs(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(`[{"type":"constructor","inputs":[
		{"name":"a","type":"address"},{"name":"k","type":"bytes32"},{"name":"n","type":"uint256"},
		{"name":"b","type":"uint8"},{"name":"f","type":"bool"},{"name":"s","type":"string"},{"name":"i","type":"int16"}]}]`))
	require.NoError(t, err)
	inputs := parsed.Constructor.Inputs

	args, err := ParseArgs(inputs, []string{
		routerAddr.Hex(), "0x" + "11" + "00000000000000000000000000000000000000000000000000000000000000",
		"1000000000000000000", "7", "true", "reservoir", "-3",
	})
	require.NoError(t, err)
	assert.Equal(t, routerAddr, args[0])
	assert.Equal(t, byte(0x11), args[1].(common.Hash)[0])
	assert.Equal(t, "1000000000000000000", args[2].(*big.Int).String())
	assert.Equal(t, uint8(7), args[3])
	assert.Equal(t, true, args[4])
	assert.Equal(t, "reservoir", args[5])
	assert.Equal(t, int16(-3), args[6])
	_, err = parsed.Pack("", args...)
	assert.NoError(t, err)

	bad := [][]string{
		{"0x12", "0x00", "1", "1", "true", "s", "1"},
		{routerAddr.Hex(), "0x00", "1", "1", "true", "s", "1"},
		{routerAddr.Hex(), common.BytesToHash(routerAddr.Bytes()).Hex(), "x", "1", "true", "s", "1"},
		{routerAddr.Hex(), common.BytesToHash(routerAddr.Bytes()).Hex(), "1", "256", "true", "s", "1"},
		{routerAddr.Hex(), common.BytesToHash(routerAddr.Bytes()).Hex(), "1", "1", "maybe", "s", "1"},
		{routerAddr.Hex(), common.BytesToHash(routerAddr.Bytes()).Hex(), "1", "1", "true", "s", "40000"},
		{routerAddr.Hex()},
	}
	for _, raw := range bad {
		_, err := ParseArgs(inputs, raw)
		assert.ErrorIs(t, err, types.ErrInvalidArgument, "%v", raw)
	}
}
