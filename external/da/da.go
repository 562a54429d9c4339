package da

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnb-chain/da-orchestrator/config"
)

type TxStatus int

const (
	TxStatusPending            TxStatus = 0
	TxStatusFinalized          TxStatus = 1
	TxStatusRejectedOrNotFound TxStatus = 2
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusPending:
		return "pending"
	case TxStatusFinalized:
		return "finalized"
	case TxStatusRejectedOrNotFound:
		return "rejected_or_not_found"
	}
	return "unknown"
}

var (
	// ErrSubmissionRejected means the DA layer actively refused the blob; it
	// consumes a submission attempt.
	ErrSubmissionRejected = errors.New("the DA layer rejected the blob submission")
	// ErrTransport covers network failures and timeouts talking to the DA
	// layer.
	ErrTransport = errors.New("transport error talking to the DA layer")
)

// Client is the capability a DA backend must provide. One implementation per
// backend, selected at startup.
type Client interface {
	// Submit stores the payload on the DA layer and returns an opaque
	// transaction handle for later status queries.
	Submit(ctx context.Context, payload []byte) (string, error)
	// Status reports whether the transaction behind the handle has finalized.
	Status(ctx context.Context, handle string) (TxStatus, error)
}

func NewClient(cfg *config.DAConfig) (Client, error) {
	switch cfg.Provider {
	case config.DAProviderCelestia:
		return NewCelestiaClient(&cfg.Celestia)
	case config.DAProviderGreenfield:
		return NewGreenfieldClient(&cfg.Greenfield)
	}
	return nil, fmt.Errorf("unexpected DA provider %s", cfg.Provider)
}
