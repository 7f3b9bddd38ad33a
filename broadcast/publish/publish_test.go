package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"
	"github.com/spacecats-dao/spacecats-sync/post"
	"github.com/tj/assert"
)

type fakeKinesis struct {
	kinesisiface.KinesisAPI
	inputs []*kinesis.PutRecordInput
	err    error
}

func (f *fakeKinesis) PutRecordWithContext(_ aws.Context, input *kinesis.PutRecordInput, _ ...request.Option) (*kinesis.PutRecordOutput, error) {
	f.inputs = append(f.inputs, input)
	return &kinesis.PutRecordOutput{}, f.err
}

func TestSend(t *testing.T) {
	api := &fakeKinesis{}
	p := New(api, StreamName("dev"))

	dp := post.DurablePost{
		ID:   "abc123",
		Post: post.Post{Content: "hello", Author: "A1", Timestamp: time.Unix(1690000000, 0).UTC()},
	}
	assert.Nil(t, p.Send(context.Background(), dp))
	assert.Len(t, api.inputs, 1)

	input := api.inputs[0]
	assert.Equal(t, "dev-spacecats-events", aws.StringValue(input.StreamName))
	assert.Equal(t, "post", aws.StringValue(input.PartitionKey))

	var envelope Envelope
	assert.Nil(t, json.Unmarshal(input.Data, &envelope))
	assert.Equal(t, "post", envelope.Topic)

	var got post.DurablePost
	assert.Nil(t, json.Unmarshal(envelope.Payload, &got))
	assert.Equal(t, dp, got)
}

func TestSendError(t *testing.T) {
	api := &fakeKinesis{err: errors.New("throttled")}
	err := New(api, "stream").Send(context.Background(), post.DurablePost{ID: "x"})
	assert.NotNil(t, err)
}
