// Package publish forwards post events to a Kinesis stream for consumers
// outside this process.
package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"

	"github.com/spacecats-dao/spacecats-sync/broadcast"
	"github.com/spacecats-dao/spacecats-sync/post"
)

// Envelope is the record format written to the stream.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

type Publisher struct {
	client     kinesisiface.KinesisAPI
	streamName string
}

var _ broadcast.Sink = (*Publisher)(nil)

func New(client kinesisiface.KinesisAPI, streamName string) *Publisher {
	return &Publisher{
		client:     client,
		streamName: streamName,
	}
}

// Build creates a Publisher for the standard stream of env.
func Build(s *session.Session, env string) *Publisher {
	return New(kinesis.New(s), StreamName(env))
}

// StreamName returns the Kinesis stream name for the given environment.
func StreamName(env string) string {
	return env + "-spacecats-events"
}

func (p *Publisher) Name() string { return "kinesis" }

// Send writes p under the "post" topic. The topic is the partition key, so
// posts stay ordered within the stream.
func (p *Publisher) Send(ctx context.Context, dp post.DurablePost) error {
	payload, err := json.Marshal(dp)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}
	data, err := json.Marshal(Envelope{Topic: broadcast.MsgPost, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshalling envelope: %w", err)
	}

	_, err = p.client.PutRecordWithContext(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(p.streamName),
		PartitionKey: aws.String(broadcast.MsgPost),
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("publishing to kinesis stream %v: %w", p.streamName, err)
	}
	return nil
}
