// Package chain reads time from an Ethereum JSON-RPC node so the ledger can
// vest against block timestamps instead of the local wall clock.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// HeaderSource returns block headers. *ethclient.Client satisfies it.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// ErrStaleBlock is returned when the latest block is older than MaxAge.
var ErrStaleBlock = errors.New("chain: latest block is stale")

// BlockClock reports the timestamp of the latest block.
type BlockClock struct {
	src HeaderSource
	// MaxAge rejects readings from a node that stopped producing blocks.
	// Zero disables the check.
	MaxAge time.Duration
	now    func() time.Time
}

// NewBlockClock returns a BlockClock reading from src.
func NewBlockClock(src HeaderSource, maxAge time.Duration) *BlockClock {
	return &BlockClock{src: src, MaxAge: maxAge, now: time.Now}
}

// Now returns the latest block timestamp in unix seconds.
func (c *BlockClock) Now(ctx context.Context) (uint64, error) {
	h, err := c.src.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: latest header: %w", err)
	}
	if h == nil {
		return 0, errors.New("chain: latest header: empty response")
	}
	if c.MaxAge > 0 {
		age := c.now().Sub(time.Unix(int64(h.Time), 0))
		if age > c.MaxAge {
			return 0, fmt.Errorf("%w: block %s is %s old", ErrStaleBlock, h.Number, age.Truncate(time.Second))
		}
	}
	return h.Time, nil
}

// Client is a JSON-RPC connection to a node.
type Client struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

// Dial connects to the node at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return &Client{rpc: rc, eth: ethclient.NewClient(rc)}, nil
}

// Eth returns the typed client.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// ChainID asks the node for its chain id.
func (c *Client) ChainID(ctx context.Context) (int64, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: chain id: %w", err)
	}
	return id.Int64(), nil
}

// IncreaseTime moves a development node's clock forward and mines a block so
// the new time is visible. It works against anvil and hardhat.
func (c *Client) IncreaseTime(ctx context.Context, seconds uint64) (uint64, error) {
	var ignored any
	if err := c.rpc.CallContext(ctx, &ignored, "evm_increaseTime", seconds); err != nil {
		return 0, fmt.Errorf("chain: evm_increaseTime: %w", err)
	}
	if err := c.rpc.CallContext(ctx, &ignored, "evm_mine"); err != nil {
		return 0, fmt.Errorf("chain: evm_mine: %w", err)
	}
	return NewBlockClock(c.eth, 0).Now(ctx)
}

// Close closes the connection.
func (c *Client) Close() {
	c.eth.Close()
}
