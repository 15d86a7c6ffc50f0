// Package testutil provides in-memory fakes for the small collaborator
// interfaces the scoring core depends on (pkg/types), so engine,
// publisher, and webhook tests can exercise real control flow without a
// live chain RPC endpoint, code host, or HTTP transport.
package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/onchainscore/scoringcore/pkg/types"
)

// FakeRPCClient is a scriptable pkg/types.RPCClient. Canned responses are
// set directly on the exported fields; a nil error field means "succeed
// with the configured value."
type FakeRPCClient struct {
	mu sync.Mutex

	Logs             []types.Log
	LogsErr          error
	BlockNumber      uint64
	BlockNumberErr   error
	Blocks           map[uint64]types.Block
	BlockErr         error
	Transactions     map[string]types.Transfer
	TransactionErr   error
	TxCounts         map[string]uint64
	TxCountErr       error
	Balances         map[string]*big.Int
	BalanceErr       error
	CallResponses    map[string][]byte
	CallErr          error

	Calls []string // records method names invoked, in order, for assertions
}

// NewFakeRPCClient returns a FakeRPCClient with its maps initialized.
func NewFakeRPCClient() *FakeRPCClient {
	return &FakeRPCClient{
		Blocks:        map[uint64]types.Block{},
		Transactions:  map[string]types.Transfer{},
		TxCounts:      map[string]uint64{},
		Balances:      map[string]*big.Int{},
		CallResponses: map[string][]byte{},
	}
}

func (f *FakeRPCClient) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, name)
}

func (f *FakeRPCClient) GetLogs(ctx context.Context, fromBlock, toBlock uint64, contract string, topics []string) ([]types.Log, error) {
	f.record("GetLogs")
	if f.LogsErr != nil {
		return nil, f.LogsErr
	}
	return f.Logs, nil
}

func (f *FakeRPCClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	f.record("GetBlockNumber")
	if f.BlockNumberErr != nil {
		return 0, f.BlockNumberErr
	}
	return f.BlockNumber, nil
}

func (f *FakeRPCClient) GetBlock(ctx context.Context, number uint64) (types.Block, error) {
	f.record("GetBlock")
	if f.BlockErr != nil {
		return types.Block{}, f.BlockErr
	}
	b, ok := f.Blocks[number]
	if !ok {
		return types.Block{}, fmt.Errorf("fake rpc: no block %d configured", number)
	}
	return b, nil
}

func (f *FakeRPCClient) GetTransaction(ctx context.Context, txHash string) (types.Transfer, error) {
	f.record("GetTransaction")
	if f.TransactionErr != nil {
		return types.Transfer{}, f.TransactionErr
	}
	t, ok := f.Transactions[txHash]
	if !ok {
		return types.Transfer{}, fmt.Errorf("fake rpc: no tx %s configured", txHash)
	}
	return t, nil
}

func (f *FakeRPCClient) GetTransactionCount(ctx context.Context, wallet string) (uint64, error) {
	f.record("GetTransactionCount")
	if f.TxCountErr != nil {
		return 0, f.TxCountErr
	}
	return f.TxCounts[wallet], nil
}

func (f *FakeRPCClient) GetBalance(ctx context.Context, wallet string) (*big.Int, error) {
	f.record("GetBalance")
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	if bal, ok := f.Balances[wallet]; ok {
		return bal, nil
	}
	return big.NewInt(0), nil
}

func (f *FakeRPCClient) Call(ctx context.Context, contract string, data []byte) ([]byte, error) {
	f.record("Call")
	if f.CallErr != nil {
		return nil, f.CallErr
	}
	if out, ok := f.CallResponses[contract]; ok {
		return out, nil
	}
	return make([]byte, 32), nil
}

// FakeCodeHostFetcher returns a canned profile per handle.
type FakeCodeHostFetcher struct {
	Profiles map[string]types.CodeHostProfile
	Err      error
}

func (f *FakeCodeHostFetcher) Fetch(ctx context.Context, handle string) (types.CodeHostProfile, error) {
	if f.Err != nil {
		return types.CodeHostProfile{}, f.Err
	}
	return f.Profiles[handle], nil
}

// FakeBasenameResolver returns a canned ownership flag per wallet.
type FakeBasenameResolver struct {
	Owners map[string]bool
	Err    error
}

func (f *FakeBasenameResolver) Owns(ctx context.Context, wallet string) (bool, error) {
	if f.Err != nil {
		return false, f.Err
	}
	return f.Owners[wallet], nil
}

// FakeIdentityResolver returns a canned (self-registered, handle) pair per
// wallet.
type FakeIdentityResolver struct {
	Registrations map[string]struct {
		SelfRegistered bool
		CodeHostHandle string
	}
	Err error
}

func (f *FakeIdentityResolver) Resolve(ctx context.Context, wallet string) (bool, string, error) {
	if f.Err != nil {
		return false, "", f.Err
	}
	r := f.Registrations[wallet]
	return r.SelfRegistered, r.CodeHostHandle, nil
}

// FakeWebhookSender records every delivery attempt and replies with a
// scripted status code (defaulting to 200).
type FakeWebhookSender struct {
	mu          sync.Mutex
	StatusCode  int
	Err         error
	Deliveries  []FakeDelivery
}

// FakeDelivery is one recorded call to Send.
type FakeDelivery struct {
	URL       string
	Body      []byte
	Signature string
}

func (f *FakeWebhookSender) Send(ctx context.Context, url string, body []byte, signature string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deliveries = append(f.Deliveries, FakeDelivery{URL: url, Body: body, Signature: signature})
	if f.Err != nil {
		return 0, f.Err
	}
	if f.StatusCode == 0 {
		return 200, nil
	}
	return f.StatusCode, nil
}

// FakeChainWriter satisfies pkg/types.ChainWriter for publisher tests.
type FakeChainWriter struct {
	Balance      *big.Int
	BalanceErr   error
	PublishErr   error
	ConfirmErr   error
	Published    []FakePublication
	TxHashPrefix string
}

// FakePublication is one recorded PublishScore call.
type FakePublication struct {
	Wallet       string
	Composite    int
	ModelVersion string
}

func (f *FakeChainWriter) NativeBalance(ctx context.Context) (*big.Int, error) {
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	if f.Balance != nil {
		return f.Balance, nil
	}
	return big.NewInt(0), nil
}

func (f *FakeChainWriter) PublishScore(ctx context.Context, wallet string, composite int, modelVersion string) (string, error) {
	if f.PublishErr != nil {
		return "", f.PublishErr
	}
	f.Published = append(f.Published, FakePublication{Wallet: wallet, Composite: composite, ModelVersion: modelVersion})
	return fmt.Sprintf("%s%d", f.TxHashPrefix, len(f.Published)), nil
}

func (f *FakeChainWriter) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (types.TxReceipt, error) {
	if f.ConfirmErr != nil {
		return types.TxReceipt{}, f.ConfirmErr
	}
	return types.TxReceipt{TxHash: txHash, Status: 1, GasUsed: 21000}, nil
}
