package external

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/bnb-chain/da-orchestrator/types"
)

var (
	ErrUpstreamUnavailable = errors.New("the upstream node is unavailable")
	ErrBlockNotFound       = errors.New("the block is not found on the upstream node") // also returned for not-yet-finalized blocks
)

// ChainClient reads block numbers and state diffs from the upstream L2 node
// over JSON-RPC.
type ChainClient struct {
	client  *rpc.Client
	timeout time.Duration
}

func NewChainClient(rpcAddr string, timeout time.Duration) (*ChainClient, error) {
	client, err := rpc.Dial(rpcAddr)
	if err != nil {
		return nil, err
	}
	return &ChainClient{
		client:  client,
		timeout: timeout,
	}, nil
}

func (c *ChainClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var result hexutil.Uint64
	if err := c.client.CallContext(ctx, &result, "starknet_blockNumber"); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, err.Error())
	}
	return uint64(result), nil
}

// StateDiff fetches the state update for the block. A node-side block-not-found
// maps to ErrBlockNotFound, anything transport shaped to ErrUpstreamUnavailable.
func (c *ChainClient) StateDiff(ctx context.Context, blockNumber uint64) (*types.StateDiff, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var result types.StateDiff
	err := c.client.CallContext(ctx, &result, "starknet_getStateUpdate", map[string]uint64{"block_number": blockNumber})
	if err != nil {
		if strings.Contains(err.Error(), "Block not found") {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, err.Error())
	}
	// An empty block hash means the node answered with a pending block; the
	// diff is not final yet.
	if result.BlockHash == "" {
		return nil, ErrBlockNotFound
	}
	result.BlockNumber = blockNumber
	return &result, nil
}
