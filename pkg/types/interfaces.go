package types

import (
	"context"
	"math/big"
	"time"
)

// Log is a minimal, chain-library-agnostic representation of an EVM log
// entry — enough for the indexers (C2) to filter and decode without the
// rest of the core depending directly on go-ethereum's types.
type Log struct {
	TxHash      string
	BlockNumber uint64
	Address     string
	Topics      []string
	Data        []byte
}

// Block is a minimal block header the indexers need for chunk anchoring.
type Block struct {
	Number    uint64
	Timestamp time.Time
}

// TxReceipt is the minimal receipt shape the chain writer needs to report
// back after a publication transaction confirms.
type TxReceipt struct {
	TxHash  string
	Status  uint64
	GasUsed uint64
}

// RPCClient is the small seam the core depends on for all chain reads.
// Implementations wrap go-ethereum's ethclient (or a test double).
type RPCClient interface {
	GetLogs(ctx context.Context, fromBlock, toBlock uint64, contract string, topics []string) ([]Log, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, number uint64) (Block, error)
	GetTransaction(ctx context.Context, txHash string) (Transfer, error)
	GetTransactionCount(ctx context.Context, wallet string) (uint64, error)
	GetBalance(ctx context.Context, wallet string) (*big.Int, error)
	Call(ctx context.Context, contract string, data []byte) ([]byte, error)
}

// CodeHostFetcher resolves a wallet's linked code-host (e.g. GitHub)
// metadata for the identity dimension. Out of core scope to implement
// fully — the core only depends on this narrow read.
type CodeHostFetcher interface {
	Fetch(ctx context.Context, handle string) (CodeHostProfile, error)
}

// CodeHostProfile is the subset of code-host metadata the identity
// dimension scorer consumes.
type CodeHostProfile struct {
	Verified     bool
	Stars        int
	LastPushedAt time.Time
}

// BasenameResolver resolves whether a wallet owns a human-readable basename.
type BasenameResolver interface {
	Owns(ctx context.Context, wallet string) (bool, error)
}

// WebhookSender delivers a signed webhook POST and reports the outcome so
// the delivery job (C10) can schedule retries or mark success.
type WebhookSender interface {
	Send(ctx context.Context, url string, body []byte, signature string) (statusCode int, err error)
}

// IdentityResolver resolves the wallet-linked identity facts recorded
// through the (external) admin/registration flow — whether the wallet
// self-registered and which code-host handle, if any, it linked — so the
// identity dimension (C4) can look up code-host metadata without the core
// owning the registration mapping itself.
type IdentityResolver interface {
	Resolve(ctx context.Context, wallet string) (selfRegistered bool, codeHostHandle string, err error)
}

// ChainWriter publishes an eligible score on-chain for the reputation
// publisher (C9) and reports the resulting wallet's native balance so the
// publisher can skip when under its floor.
type ChainWriter interface {
	NativeBalance(ctx context.Context) (*big.Int, error)
	PublishScore(ctx context.Context, wallet string, composite int, modelVersion string) (txHash string, err error)
	WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (TxReceipt, error)
}
