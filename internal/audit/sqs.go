package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"trapforwarder/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes entries to a queue for central collection.
type SQSSink struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewSQSSink creates an SQSSink targeting queueURL.
func NewSQSSink(client SQSSender, queueURL string, logger types.Logger) *SQSSink {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &SQSSink{client: client, queueURL: queueURL, logger: logger}
}

// Append serializes e and sends it. The trap state and issue type travel as
// message attributes so consumers can filter without parsing the body.
func (s *SQSSink) Append(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit queue: failed to marshal entry: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"trap_state": stringAttr(e.TrapState),
			"issue_type": stringAttr(e.IssueType),
		},
	}

	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("audit queue: failed to send entry to %s: %w", s.queueURL, err)
	}

	s.logger.Info("audit entry published",
		"entry_id", e.ID,
		"message_id", aws.ToString(out.MessageId),
		"sequence_id", e.SequenceID,
	)
	return nil
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	if v == "" {
		v = "none"
	}
	return sqstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
