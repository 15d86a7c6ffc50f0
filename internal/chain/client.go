// Package chain adapts go-ethereum's ethclient to the RPCClient and
// ChainWriter seams the core depends on for all chain reads and the
// reputation publisher's on-chain writes.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/onchainscore/scoringcore/pkg/types"
)

// Client wraps an ethclient.Client and satisfies pkg/types.RPCClient.
type Client struct {
	eth *ethclient.Client
	url string
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(rpcURL string) (*Client, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return &Client{eth: c, url: rpcURL}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// Raw exposes the underlying ethclient.Client for collaborators that need
// the concrete go-ethereum type directly, such as chain.NewWriter's
// transaction-signing path.
func (c *Client) Raw() *ethclient.Client {
	return c.eth
}

// GetLogs fetches logs for a contiguous block range from a single contract,
// used by both C2 indexers to pull Transfer-shaped events in chunks.
func (c *Client) GetLogs(ctx context.Context, fromBlock, toBlock uint64, contract string, topics []string) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
	}
	if contract != "" {
		query.Addresses = []common.Address{common.HexToAddress(contract)}
	}
	if len(topics) > 0 {
		row := make([]common.Hash, 0, len(topics))
		for _, t := range topics {
			row = append(row, common.HexToHash(t))
		}
		query.Topics = [][]common.Hash{row}
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", fromBlock, toBlock, err)
	}

	out := make([]types.Log, len(logs))
	for i, l := range logs {
		topicStrs := make([]string, len(l.Topics))
		for j, t := range l.Topics {
			topicStrs[j] = t.Hex()
		}
		out[i] = types.Log{
			TxHash:      l.TxHash.Hex(),
			BlockNumber: l.BlockNumber,
			Address:     l.Address.Hex(),
			Topics:      topicStrs,
			Data:        l.Data,
		}
	}
	return out, nil
}

// GetBlockNumber returns the current chain tip, used to compute backfill
// progress and the catch-up/tail-follow boundary (spec §4.2).
func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return n, nil
}

func (c *Client) GetBlock(ctx context.Context, number uint64) (types.Block, error) {
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return types.Block{}, fmt.Errorf("header by number %d: %w", number, err)
	}
	return types.Block{
		Number:    header.Number.Uint64(),
		Timestamp: timeFromUnix(header.Time),
	}, nil
}

// GetTransaction fetches a transaction and its receipt and reshapes them
// into a Transfer — native-value transactions only; ERC20 transfers are
// decoded from logs by the indexers, not through this path.
func (c *Client) GetTransaction(ctx context.Context, txHash string) (types.Transfer, error) {
	hash := common.HexToHash(txHash)

	tx, isPending, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return types.Transfer{}, fmt.Errorf("transaction by hash %s: %w", txHash, err)
	}
	if isPending {
		return types.Transfer{}, fmt.Errorf("transaction %s still pending", txHash)
	}

	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return types.Transfer{}, fmt.Errorf("transaction receipt %s: %w", txHash, err)
	}

	from, err := c.eth.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return types.Transfer{}, fmt.Errorf("transaction sender %s: %w", txHash, err)
	}

	block, err := c.GetBlock(ctx, receipt.BlockNumber.Uint64())
	if err != nil {
		return types.Transfer{}, err
	}

	to := ""
	if tx.To() != nil {
		to = tx.To().Hex()
	}

	return types.Transfer{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		From:        from.Hex(),
		To:          to,
		Amount:      new(big.Rat).SetInt(tx.Value()),
		Timestamp:   block.Timestamp,
	}, nil
}

// GetTransactionCount returns the wallet's current nonce, used by the
// reliability dimension's account-age proxy and the gaming detector's
// nonce-inflation check (spec §4.3/§4.4).
func (c *Client) GetTransactionCount(ctx context.Context, wallet string) (uint64, error) {
	n, err := c.eth.NonceAt(ctx, common.HexToAddress(wallet), nil)
	if err != nil {
		return 0, fmt.Errorf("nonce at %s: %w", wallet, err)
	}
	return n, nil
}

func (c *Client) GetBalance(ctx context.Context, wallet string) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, common.HexToAddress(wallet), nil)
	if err != nil {
		return nil, fmt.Errorf("balance at %s: %w", wallet, err)
	}
	return bal, nil
}

// Call performs a read-only contract call with pre-encoded calldata,
// grounded on the teacher's ContractClient.Call pattern but pushed down to
// raw bytes so this package stays ABI-agnostic; callers own encode/decode.
func (c *Client) Call(ctx context.Context, contract string, data []byte) ([]byte, error) {
	to := common.HexToAddress(contract)
	output, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", contract, err)
	}
	return output, nil
}
