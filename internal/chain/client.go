package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Options control per-call timeouts and the retry policy. Every call
// carries the timeout; a timed-out call counts as a failed attempt.
type Options struct {
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

// Client wraps go-ethereum RPC with bounded retries and per-call timeouts.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	opts      Options
}

// NewClient dials the RPC URL and returns a retrying client.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}

	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		opts:      opts,
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		id, err = c.ethClient.ChainID(ctx)
		return err
	})
	return id, err
}

// LatestBlockNumber returns the current chain head number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var latest uint64
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		latest, err = c.ethClient.BlockNumber(ctx)
		return err
	})
	return latest, err
}

// BlockByNumber returns the block with full transactions, or (nil, nil)
// when the block does not exist. Not-found is valid-but-empty, never
// retried.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	var block *types.Block
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		block, err = c.ethClient.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		if errors.Is(err, ethereum.NotFound) {
			block = nil
			return nil
		}
		return err
	})
	return block, err
}

// TransactionReceipt returns the receipt for a transaction hash, or
// (nil, nil) when the node has no receipt for it.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = c.ethClient.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			receipt = nil
			return nil
		}
		return err
	})
	return receipt, err
}

// Call performs a raw JSON-RPC call under the same timeout and retry
// policy as the typed helpers.
func (c *Client) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.rpcClient.CallContext(ctx, result, method, params...)
	})
}

func (c *Client) do(ctx context.Context, fn func(context.Context) error) error {
	return withRetry(ctx, c.opts.MaxRetries, c.opts.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
		return fn(callCtx)
	})
}
