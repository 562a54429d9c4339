package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/bnb-chain/da-orchestrator/config"
)

type TaskKind int

const (
	// TaskProcess drives a CREATED record through DA submission.
	TaskProcess TaskKind = 0
	// TaskVerify polls the DA layer for the submitted transaction's finality.
	TaskVerify TaskKind = 1
)

func (k TaskKind) String() string {
	if k == TaskProcess {
		return "process"
	}
	return "verify"
}

// Task is the unit of work handed between orchestration phases. Delivery is
// at-least-once and unordered; workers must stay correct under arbitrary
// redelivery.
type Task struct {
	Kind        TaskKind `json:"kind"`
	BlockNumber uint64   `json:"block_number"`
	Attempt     uint64   `json:"attempt"`
}

// Delivery is one received task plus its settle handles. An unsettled or
// nacked delivery is redelivered by the queue's own policy.
type Delivery struct {
	Task Task

	ack  func() error
	nack func() error
}

func (d *Delivery) Ack() error {
	return d.ack()
}

func (d *Delivery) Nack() error {
	return d.nack()
}

type Queue interface {
	// Send enqueues the task, visible no earlier than delay from now. Tasks
	// are routed to the process or verify queue by their kind.
	Send(ctx context.Context, task Task, delay time.Duration) error
	// Receive blocks until a task of either kind is available or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)
}

func New(cfg *config.QueueConfig) (Queue, error) {
	switch cfg.Dialect {
	case config.QueueDialectSQS:
		return newSQSQueue(cfg)
	case config.QueueDialectMemory:
		return NewMemoryQueue(), nil
	}
	return nil, fmt.Errorf("unexpected queue dialect %s", cfg.Dialect)
}
