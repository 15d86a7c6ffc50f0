package indexer

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
)

const testToken = "0x000000000000000000000000000000000000aa"

// fakeRPC is a minimal in-memory types.RPCClient for indexer tests.
type fakeRPC struct {
	tip  uint64
	logs map[uint64][]types.Log // by block number
	txs  map[string]types.Transfer
}

func (f *fakeRPC) GetLogs(_ context.Context, from, to uint64, contract string, _ []string) ([]types.Log, error) {
	var out []types.Log
	for b := from; b <= to; b++ {
		for _, l := range f.logs[b] {
			if l.Address == contract {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func (f *fakeRPC) GetBlockNumber(context.Context) (uint64, error) { return f.tip, nil }

func (f *fakeRPC) GetBlock(_ context.Context, number uint64) (types.Block, error) {
	return types.Block{Number: number, Timestamp: time.Unix(int64(number)*2, 0).UTC()}, nil
}

func (f *fakeRPC) GetTransaction(_ context.Context, txHash string) (types.Transfer, error) {
	t, ok := f.txs[txHash]
	if !ok {
		return types.Transfer{}, assert.AnError
	}
	return t, nil
}

func (f *fakeRPC) GetTransactionCount(context.Context, string) (uint64, error) { return 0, nil }
func (f *fakeRPC) GetBalance(context.Context, string) (*big.Int, error)        { return big.NewInt(0), nil }
func (f *fakeRPC) Call(context.Context, string, []byte) ([]byte, error)        { return nil, nil }

func transferLog(block uint64, txHash, from, to string, value *big.Int) types.Log {
	return types.Log{
		TxHash:      txHash,
		BlockNumber: block,
		Address:     testToken,
		Topics: []string{
			transferEventTopic0,
			topicFromAddress(from),
			topicFromAddress(to),
		},
		Data: value.Bytes(),
	}
}

func topicFromAddress(addr string) string {
	return "0x000000000000000000000000" + addr[2:]
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "idx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGenericTransferIndexerIndexesAndAdvancesCheckpoint(t *testing.T) {
	from := "0x000000000000000000000000000000000000000a"
	to := "0x000000000000000000000000000000000000000b"
	amount := big.NewInt(5_000_000) // 5.000000 at 6dp

	rpc := &fakeRPC{
		tip: 10,
		logs: map[uint64][]types.Log{
			3: {transferLog(3, "0xaaa", from, to, amount)},
		},
	}
	st := newTestStore(t)

	idx := NewGenericTransferIndexer(rpc, st, GenericTransferConfig{
		TokenAddress:   testToken,
		ChunkSize:      5,
		MinChunkSize:   1,
		BackfillOffset: 10,
		PollInterval:   10 * time.Millisecond,
		RetryDelay:     10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = idx.Run(ctx)

	w, err := st.GetWallet(from)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.TotalTxCount)

	checkpoint, ok, err := st.GetState(stateKeyFor("generic_transfer"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "10", checkpoint)
}

func TestMicropaymentIndexerClassifiesByAmountCeilingWhenAuthSetLarge(t *testing.T) {
	from := "0x000000000000000000000000000000000000000a"
	to := "0x000000000000000000000000000000000000000b"
	small := big.NewInt(1_000_000)  // 1.000000, under ceiling
	large := big.NewInt(50_000_000) // 50.000000, over ceiling

	authAddr := "0x000000000000000000000000000000000000cc"
	var authLogs []types.Log
	authLogs = append(authLogs, types.Log{Address: authAddr, BlockNumber: 3, TxHash: "0xsmall"})
	authLogs = append(authLogs, types.Log{Address: authAddr, BlockNumber: 3, TxHash: "0xlarge"})
	for i := 0; i < 149; i++ {
		authLogs = append(authLogs, types.Log{Address: authAddr, BlockNumber: 3, TxHash: fmt.Sprintf("0xfiller%d", i)})
	}

	rpc := &fakeRPC{
		tip: 10,
		logs: map[uint64][]types.Log{
			3: append([]types.Log{
				transferLog(3, "0xsmall", from, to, small),
				transferLog(3, "0xlarge", from, to, large),
			}, authLogs...),
		},
	}
	st := newTestStore(t)

	idx := NewMicropaymentIndexer(rpc, st, MicropaymentConfig{
		TokenAddress:        testToken,
		AuthEventAddress:    authAddr,
		AuthEventTopic0:     "0xauth",
		FacilitatorAddress:  "0xdoesnotmatterbecausesetislarge",
		AmountCeiling:       big.NewRat(10, 1),
		AuthorizationThresh: 100,
		ChunkSize:           5,
		MinChunkSize:        1,
		BackfillOffset:      10,
		PollInterval:        10 * time.Millisecond,
		RetryDelay:          10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = idx.Run(ctx)

	transfers, err := st.TransfersForWallet(from, 10)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "0xsmall", transfers[0].TxHash)
}
