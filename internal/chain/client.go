package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/basedguardians/marketd/internal/domain"
)

// Client wraps an ethclient connection pinned to a required chain id.
type Client struct {
	eth        *ethclient.Client
	requiredID *big.Int
}

// Dial connects to the JSON-RPC endpoint and verifies it serves the required
// chain. A mismatch is reported as domain.ErrWrongNetwork.
func Dial(ctx context.Context, rpcURL string, requiredChainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	c := &Client{
		eth:        eth,
		requiredID: big.NewInt(requiredChainID),
	}
	if err := c.VerifyNetwork(ctx); err != nil {
		eth.Close()
		return nil, err
	}
	return c, nil
}

// VerifyNetwork re-reads the endpoint's chain id and compares it against the
// required one. Called before every mutating submission so a silently
// re-pointed endpoint is rejected locally rather than signed against.
func (c *Client) VerifyNetwork(ctx context.Context) error {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain: read chain id: %w", err)
	}
	if id.Cmp(c.requiredID) != 0 {
		return fmt.Errorf("chain: connected to chain %s, required %s: %w",
			id, c.requiredID, domain.ErrWrongNetwork)
	}
	return nil
}

// ChainID returns the required chain id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.requiredID)
}

// Eth returns the underlying ethclient for the caller, transactor, and
// waiter types in this package.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// Close tears down the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
