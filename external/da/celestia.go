package da

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/bnb-chain/da-orchestrator/config"
	"github.com/bnb-chain/da-orchestrator/util"
)

const (
	celestiaRPCTimeout            = 30 * time.Second
	celestiaDefaultShareVersion   = 0
	celestiaDefaultConfirmations  = 1
	celestiaNotFoundErrorFragment = "blob: not found"
)

// celestiaBlob mirrors the wire shape the celestia node expects for
// blob.Submit. Byte fields are base64 encoded by the JSON codec.
type celestiaBlob struct {
	Namespace    []byte `json:"namespace"`
	Data         []byte `json:"data"`
	ShareVersion int    `json:"share_version"`
}

type celestiaHeader struct {
	Header struct {
		Height string `json:"height"`
	} `json:"header"`
}

// CelestiaClient submits blobs to a celestia light node over its JSON-RPC
// gateway. The transaction handle is the inclusion height.
type CelestiaClient struct {
	client        *rpc.Client
	namespace     []byte
	confirmations uint64
}

func NewCelestiaClient(cfg *config.CelestiaConfig) (*CelestiaClient, error) {
	opts := make([]rpc.ClientOption, 0, 1)
	if cfg.AuthToken != "" {
		opts = append(opts, rpc.WithHeader("Authorization", "Bearer "+cfg.AuthToken))
	}
	client, err := rpc.DialOptions(context.Background(), cfg.RPCAddr, opts...)
	if err != nil {
		return nil, err
	}
	namespace, err := hex.DecodeString(strings.TrimPrefix(cfg.Namespace, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid celestia namespace %s: %s", cfg.Namespace, err.Error())
	}
	confirmations := cfg.Confirmations
	if confirmations == 0 {
		confirmations = celestiaDefaultConfirmations
	}
	return &CelestiaClient{
		client:        client,
		namespace:     namespace,
		confirmations: confirmations,
	}, nil
}

func (c *CelestiaClient) Submit(ctx context.Context, payload []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, celestiaRPCTimeout)
	defer cancel()
	blobs := []*celestiaBlob{
		{
			Namespace:    c.namespace,
			Data:         payload,
			ShareVersion: celestiaDefaultShareVersion,
		},
	}
	var height uint64
	err := c.client.CallContext(ctx, &height, "blob.Submit", blobs, map[string]interface{}{})
	if err != nil {
		if _, ok := err.(rpc.Error); ok {
			return "", fmt.Errorf("%w: %s", ErrSubmissionRejected, err.Error())
		}
		return "", fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}
	return util.Uint64ToString(height), nil
}

func (c *CelestiaClient) Status(ctx context.Context, handle string) (TxStatus, error) {
	height, err := util.StringToUint64(handle)
	if err != nil {
		return TxStatusRejectedOrNotFound, nil
	}
	ctx, cancel := context.WithTimeout(ctx, celestiaRPCTimeout)
	defer cancel()

	var head celestiaHeader
	if err = c.client.CallContext(ctx, &head, "header.LocalHead"); err != nil {
		return TxStatusPending, fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}
	headHeight, err := util.StringToUint64(head.Header.Height)
	if err != nil {
		return TxStatusPending, fmt.Errorf("%w: malformed head height %s", ErrTransport, head.Header.Height)
	}
	if headHeight < height+c.confirmations {
		return TxStatusPending, nil
	}

	// The chain moved past the inclusion height; the blob must be retrievable
	// there, otherwise the submission was orphaned.
	var blobs []*celestiaBlob
	err = c.client.CallContext(ctx, &blobs, "blob.GetAll", height, [][]byte{c.namespace})
	if err != nil {
		if strings.Contains(err.Error(), celestiaNotFoundErrorFragment) {
			return TxStatusRejectedOrNotFound, nil
		}
		return TxStatusPending, fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}
	if len(blobs) == 0 {
		return TxStatusRejectedOrNotFound, nil
	}
	return TxStatusFinalized, nil
}
