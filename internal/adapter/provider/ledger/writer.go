// Package ledger commits approved signals to the FirstSignal contract by
// calling store(string). The ledger reference is the transaction hash.
//
// A signal is written by exactly one signed transaction. The caller records
// it before the first broadcast; later attempts rebroadcast the recorded
// transaction instead of signing a new one.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/heartmarshall/firstsignal-backend/internal/config"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

const contractABI = `[
	{"inputs":[],"name":"retrieve","outputs":[{"internalType":"string[]","name":"","type":"string[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"retrieveLast","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"string","name":"_message","type":"string"}],"name":"store","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	// ErrReverted is returned when the transaction was mined but failed.
	ErrReverted = fmt.Errorf("ledger: transaction reverted: %w", domain.ErrLedgerRejected)
	// ErrReplaced is returned when the account nonce moved past the
	// transaction without mining it.
	ErrReplaced = fmt.Errorf("ledger: transaction replaced: %w", domain.ErrLedgerRejected)
)

// nonceCheckTimeout bounds the replacement check after a receipt wait times out.
const nonceCheckTimeout = 5 * time.Second

// ethBackend is the subset of *ethclient.Client the writer uses.
type ethBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Entry is the record written on chain for a committed signal. The sender
// contact is shown to the moderator only and never written to the ledger.
type Entry struct {
	SignalID  string `json:"id"`
	Sender    string `json:"from"`
	Recipient string `json:"to"`
	Message   string `json:"message"`
}

// Writer sends store(string) transactions signed with a single key.
type Writer struct {
	backend        ethBackend
	contract       common.Address
	abi            abi.ABI
	key            *ecdsa.PrivateKey
	from           common.Address
	gasLimit       uint64
	receiptTimeout time.Duration
	pollInterval   time.Duration
	log            *slog.Logger

	// Serializes nonce allocation for concurrent commits.
	mu      sync.Mutex
	chainID *big.Int
}

// Dial connects to the RPC endpoint and creates a Writer.
func Dial(ctx context.Context, cfg config.LedgerConfig, logger *slog.Logger) (*Writer, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: dial %s: %w", cfg.RPCURL, err)
	}
	w, err := NewWriter(client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return w, client, nil
}

// NewWriter creates a Writer over any backend.
func NewWriter(backend ethBackend, cfg config.LedgerConfig, logger *slog.Logger) (*Writer, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse abi: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse private key: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("ledger: invalid contract address %q", cfg.ContractAddress)
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	return &Writer{
		backend:        backend,
		contract:       common.HexToAddress(cfg.ContractAddress),
		abi:            parsed,
		key:            key,
		from:           from,
		gasLimit:       cfg.GasLimit,
		receiptTimeout: cfg.ReceiptTimeout,
		pollInterval:   cfg.PollInterval,
		log:            logger.With("adapter", "ledger", "account", from.Hex()),
	}, nil
}

// Address returns the account that signs ledger transactions.
func (w *Writer) Address() common.Address { return w.from }

// Commit writes the signal to the contract and waits for a successful
// receipt. Without a recorded transaction it signs one, hands it to record
// and broadcasts it only if record succeeds. With s.LedgerTx set it
// rebroadcasts that transaction. Errors wrapping domain.ErrLedgerRejected
// are final; any other error after record may still be followed by the
// transaction being mined.
func (w *Writer) Commit(ctx context.Context, s domain.Signal, record func(ctx context.Context, rawTx []byte) error) (string, error) {
	var (
		tx  *types.Transaction
		err error
	)
	if len(s.LedgerTx) > 0 {
		tx, err = w.rebroadcast(ctx, s)
	} else {
		tx, err = w.send(ctx, s, record)
	}
	if err != nil {
		return "", err
	}

	receipt, err := w.waitReceipt(ctx, tx)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}

	w.log.InfoContext(ctx, "ledger transaction mined",
		slog.String("signal_id", s.ID.String()),
		slog.String("tx_hash", tx.Hash().Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return tx.Hash().Hex(), nil
}

// Last returns the most recently stored entry via retrieveLast().
func (w *Writer) Last(ctx context.Context) (string, error) {
	data, err := w.abi.Pack("retrieveLast")
	if err != nil {
		return "", fmt.Errorf("ledger: pack retrieveLast: %w", err)
	}
	out, err := w.backend.CallContract(ctx, ethereum.CallMsg{To: &w.contract, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("ledger: call retrieveLast: %w", err)
	}
	vals, err := w.abi.Unpack("retrieveLast", out)
	if err != nil {
		return "", fmt.Errorf("ledger: unpack retrieveLast: %w", err)
	}
	last, _ := vals[0].(string)
	return last, nil
}

func (w *Writer) payload(s domain.Signal) ([]byte, error) {
	entry, err := json.Marshal(Entry{
		SignalID:  s.ID.String(),
		Sender:    s.SenderKey,
		Recipient: s.RecipientHandle,
		Message:   s.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: encode entry: %w", err)
	}
	data, err := w.abi.Pack("store", string(entry))
	if err != nil {
		return nil, fmt.Errorf("ledger: pack store: %w", err)
	}
	return data, nil
}

// send signs a new transaction and broadcasts it once record succeeds. The
// nonce stays reserved from allocation to broadcast.
func (w *Writer) send(ctx context.Context, s domain.Signal, record func(context.Context, []byte) error) (*types.Transaction, error) {
	data, err := w.payload(s)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.chainID == nil {
		id, err := w.backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("ledger: chain id: %w", err)
		}
		w.chainID = id
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.from)
	if err != nil {
		return nil, fmt.Errorf("ledger: pending nonce: %w", err)
	}
	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &w.contract,
		Gas:      w.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("ledger: sign: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ledger: encode transaction: %w", err)
	}
	if err := record(ctx, raw); err != nil {
		return nil, fmt.Errorf("ledger: record transaction: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("ledger: send %s: %w", signed.Hash().Hex(), err)
	}
	w.log.InfoContext(ctx, "ledger transaction sent",
		slog.String("signal_id", s.ID.String()),
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
	)
	return signed, nil
}

// rebroadcast resubmits the recorded transaction. A node that already has
// it, or has mined it, refuses the resubmission; the receipt decides.
func (w *Writer) rebroadcast(ctx context.Context, s domain.Signal) (*types.Transaction, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(s.LedgerTx); err != nil {
		return nil, fmt.Errorf("ledger: decode recorded transaction: %w", err)
	}
	if err := w.backend.SendTransaction(ctx, tx); err != nil {
		w.log.DebugContext(ctx, "rebroadcast refused",
			slog.String("signal_id", s.ID.String()),
			slog.String("tx_hash", tx.Hash().Hex()),
			slog.String("error", err.Error()),
		)
	} else {
		w.log.InfoContext(ctx, "ledger transaction rebroadcast",
			slog.String("signal_id", s.ID.String()),
			slog.String("tx_hash", tx.Hash().Hex()),
		)
	}
	return tx, nil
}

func (w *Writer) waitReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	wctx, cancel := context.WithTimeout(ctx, w.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.backend.TransactionReceipt(wctx, tx.Hash())
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) && wctx.Err() == nil {
			return nil, fmt.Errorf("ledger: receipt %s: %w", tx.Hash().Hex(), err)
		}

		select {
		case <-wctx.Done():
			return w.unmined(context.WithoutCancel(ctx), tx, wctx.Err())
		case <-ticker.C:
		}
	}
}

// unmined decides what a receipt timeout means. While the account nonce has
// not passed the transaction it can still be mined; once it has, either the
// receipt is there or the nonce went to another transaction.
func (w *Writer) unmined(ctx context.Context, tx *types.Transaction, cause error) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, nonceCheckTimeout)
	defer cancel()

	nonce, err := w.backend.NonceAt(ctx, w.from, nil)
	if err != nil || nonce <= tx.Nonce() {
		return nil, fmt.Errorf("ledger: receipt %s: %w", tx.Hash().Hex(), cause)
	}
	receipt, err := w.backend.TransactionReceipt(ctx, tx.Hash())
	if err == nil {
		return receipt, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("ledger: receipt %s: %w", tx.Hash().Hex(), err)
	}
	return nil, fmt.Errorf("%w: %s (nonce %d)", ErrReplaced, tx.Hash().Hex(), tx.Nonce())
}
