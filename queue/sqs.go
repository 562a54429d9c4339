package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/bnb-chain/da-orchestrator/config"
)

const (
	// sqsMaxDelay is the hard SQS cap on per-message DelaySeconds.
	sqsMaxDelay = 900 * time.Second

	sqsWaitTimeSeconds = 5
)

type sqsQueue struct {
	client          *sqs.SQS
	processQueueURL string
	verifyQueueURL  string
}

func newSQSQueue(cfg *config.QueueConfig) (*sqsQueue, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.AWSRegion),
	}
	if cfg.AWSEndpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.AWSEndpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return &sqsQueue{
		client:          sqs.New(sess),
		processQueueURL: cfg.ProcessQueueURL,
		verifyQueueURL:  cfg.VerifyQueueURL,
	}, nil
}

func (q *sqsQueue) queueURL(kind TaskKind) string {
	if kind == TaskProcess {
		return q.processQueueURL
	}
	return q.verifyQueueURL
}

func (q *sqsQueue) Send(ctx context.Context, task Task, delay time.Duration) error {
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if delay > sqsMaxDelay {
		delay = sqsMaxDelay
	}
	_, err = q.client.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL(task.Kind)),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: aws.Int64(int64(delay.Seconds())),
	})
	return err
}

// Receive long-polls the process and verify queues alternately until a
// message shows up on either.
func (q *sqsQueue) Receive(ctx context.Context) (*Delivery, error) {
	urls := []string{q.processQueueURL, q.verifyQueueURL}
	for i := 0; ; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		url := urls[i%len(urls)]
		out, err := q.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(url),
			MaxNumberOfMessages: aws.Int64(1),
			WaitTimeSeconds:     aws.Int64(sqsWaitTimeSeconds),
		})
		if err != nil {
			return nil, err
		}
		if len(out.Messages) == 0 {
			continue
		}
		msg := out.Messages[0]
		var task Task
		if err = json.Unmarshal([]byte(aws.StringValue(msg.Body)), &task); err != nil {
			// A malformed body can never be processed; drop it instead of
			// letting it be redelivered forever.
			_, delErr := q.client.DeleteMessage(&sqs.DeleteMessageInput{
				QueueUrl:      aws.String(url),
				ReceiptHandle: msg.ReceiptHandle,
			})
			if delErr != nil {
				return nil, delErr
			}
			return nil, fmt.Errorf("malformed task message dropped: %s", err.Error())
		}
		receipt := msg.ReceiptHandle
		return &Delivery{
			Task: task,
			ack: func() error {
				_, err := q.client.DeleteMessage(&sqs.DeleteMessageInput{
					QueueUrl:      aws.String(url),
					ReceiptHandle: receipt,
				})
				return err
			},
			nack: func() error {
				_, err := q.client.ChangeMessageVisibility(&sqs.ChangeMessageVisibilityInput{
					QueueUrl:          aws.String(url),
					ReceiptHandle:     receipt,
					VisibilityTimeout: aws.Int64(0),
				})
				return err
			},
		}, nil
	}
}
