package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/onchainscore/scoringcore/pkg/types"
)

const publishScoreABI = `[{
	"name":"publishScore",
	"type":"function",
	"inputs":[
		{"name":"wallet","type":"address"},
		{"name":"composite","type":"uint256"},
		{"name":"modelVersion","type":"string"}
	],
	"outputs":[]
}]`

// WriterOption configures a Writer's polling behaviour, mirroring the
// teacher's functional-options constructor for its tx listener.
type WriterOption func(*Writer)

// WithPollInterval overrides the default confirmation-poll interval.
func WithPollInterval(d time.Duration) WriterOption {
	return func(w *Writer) { w.pollInterval = d }
}

// Writer publishes reputation scores to a registry contract and satisfies
// pkg/types.ChainWriter.
type Writer struct {
	eth             *ethclient.Client
	privateKey      *ecdsa.PrivateKey
	fromAddr        common.Address
	registryAddr    common.Address
	chainID         *big.Int
	registryABI     abi.ABI
	pollInterval    time.Duration
}

// NewWriter builds a Writer bound to a registry contract address, signing
// transactions with privateKey.
func NewWriter(eth *ethclient.Client, privateKey *ecdsa.PrivateKey, registryAddr string, chainID int64, opts ...WriterOption) (*Writer, error) {
	parsed, err := abi.JSON(strings.NewReader(publishScoreABI))
	if err != nil {
		return nil, fmt.Errorf("parse publishScore abi: %w", err)
	}
	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("invalid private key")
	}
	w := &Writer{
		eth:          eth,
		privateKey:   privateKey,
		fromAddr:     crypto.PubkeyToAddress(*pub),
		registryAddr: common.HexToAddress(registryAddr),
		chainID:      big.NewInt(chainID),
		registryABI:  parsed,
		pollInterval: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NativeBalance reports the publisher wallet's own native-token balance, so
// the publisher job can skip publication under its configured floor
// (spec §4.9).
func (w *Writer) NativeBalance(ctx context.Context) (*big.Int, error) {
	bal, err := w.eth.BalanceAt(ctx, w.fromAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}
	return bal, nil
}

// PublishScore signs and submits a publishScore transaction to the
// registry contract, following the teacher's approve-then-send idiom
// (sign locally, broadcast, return the hash for the caller to confirm).
func (w *Writer) PublishScore(ctx context.Context, wallet string, composite int, modelVersion string) (string, error) {
	input, err := w.registryABI.Pack("publishScore", common.HexToAddress(wallet), big.NewInt(int64(composite)), modelVersion)
	if err != nil {
		return "", fmt.Errorf("pack publishScore: %w", err)
	}

	nonce, err := w.eth.PendingNonceAt(ctx, w.fromAddr)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := w.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := w.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: w.fromAddr,
		To:   &w.registryAddr,
		Data: input,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := gtypes.NewTx(&gtypes.LegacyTx{
		Nonce:    nonce,
		To:       &w.registryAddr,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})

	signer := gtypes.NewEIP155Signer(w.chainID)
	signedTx, err := gtypes.SignTx(tx, signer, w.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}

	if err := w.eth.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}

// WaitForConfirmation polls for a transaction receipt until it is mined or
// timeout elapses.
func (w *Writer) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (types.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return types.TxReceipt{
				TxHash:  receipt.TxHash.Hex(),
				Status:  receipt.Status,
				GasUsed: receipt.GasUsed,
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return types.TxReceipt{}, fmt.Errorf("poll receipt %s: %w", txHash, err)
		}
		select {
		case <-ctx.Done():
			return types.TxReceipt{}, fmt.Errorf("wait for confirmation %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}
