package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/onchainscore/scoringcore/internal/util"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// TransferEventTopic0 is keccak256("Transfer(address,address,uint256)"),
// the standard ERC20 Transfer event signature. Exported so the scoring
// engine's live transfer-window fetch (spec §4.5 step 3b) can filter on the
// same topic without duplicating the constant.
const TransferEventTopic0 = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// kept for package-internal call sites that predate the export.
const transferEventTopic0 = TransferEventTopic0

// BlockAnchor carries a chunk's start-block timestamp (or an extrapolated
// stand-in) so per-log timestamps can be derived without one RPC call per
// log (spec §4.2). Exported so the scoring engine can reuse the same
// anchoring logic for its own narrow live-window log fetch.
type BlockAnchor struct {
	block     uint64
	timestamp time.Time
}

// ResolveAnchor fetches the timestamp of fromBlock; on RPC failure it falls
// back to a genesis-anchored 2s-per-block extrapolation, per spec §4.2.
func ResolveAnchor(ctx context.Context, rpc types.RPCClient, fromBlock, genesisBlock uint64, genesisTime time.Time) BlockAnchor {
	b, err := rpc.GetBlock(ctx, fromBlock)
	if err == nil {
		return BlockAnchor{block: fromBlock, timestamp: b.Timestamp}
	}
	var delta int64
	if fromBlock > genesisBlock {
		delta = int64(fromBlock - genesisBlock)
	}
	return BlockAnchor{
		block:     fromBlock,
		timestamp: genesisTime.Add(time.Duration(delta) * 2 * time.Second),
	}
}

func (a BlockAnchor) timestampFor(block uint64) time.Time {
	if block <= a.block {
		return a.timestamp
	}
	return a.timestamp.Add(time.Duration(block-a.block) * 2 * time.Second)
}

// DecodeTransferLog decodes a standard ERC20 Transfer(from, to, value) log
// into a Transfer, scaling value down by the configured stablecoin
// precision (6 decimals).
func DecodeTransferLog(l types.Log, anchor BlockAnchor) (types.Transfer, error) {
	if len(l.Topics) < 3 {
		return types.Transfer{}, fmt.Errorf("transfer log %s: expected 3 topics, got %d", l.TxHash, len(l.Topics))
	}
	from := addressFromTopic(l.Topics[1])
	to := addressFromTopic(l.Topics[2])

	value := new(big.Int).SetBytes(l.Data)
	amount := new(big.Rat).SetFrac(value, pow10(util.AmountScale))

	return types.Transfer{
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		From:        from,
		To:          to,
		Amount:      amount,
		Timestamp:   anchor.timestampFor(l.BlockNumber),
	}, nil
}

// kept for package-internal call sites that predate the export.
func decodeTransferLog(l types.Log, anchor BlockAnchor) (types.Transfer, error) {
	return DecodeTransferLog(l, anchor)
}

func resolveAnchor(ctx context.Context, rpc types.RPCClient, fromBlock, genesisBlock uint64, genesisTime time.Time) BlockAnchor {
	return ResolveAnchor(ctx, rpc, fromBlock, genesisBlock, genesisTime)
}

// addressFromTopic extracts the low 20 bytes of a 32-byte indexed topic,
// the convention Solidity uses to encode an address parameter.
func addressFromTopic(topic string) string {
	if len(topic) < 42 {
		return topic
	}
	return "0x" + topic[len(topic)-40:]
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
