package utils

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
)

// MessageQueueMessage is one received queue entry. ReceivedTimes counts
// deliveries including this one, which lets consumers cap redelivery of
// messages that keep failing.
type MessageQueueMessage struct {
	Message       *string
	MessageId     *string
	ReceivedTimes int
	SentTimeStamp int
	ReceiptHandle string
}

func (msg *MessageQueueMessage) Read() (string, error) {
	if msg == nil || msg.Message == nil {
		return "", errors.New("empty message")
	}
	return *msg.Message, nil
}

type MessageQueueReader interface {
	// ReceiveMessages long-polls for up to maxNumberOfMessages entries.
	ReceiveMessages(maxNumberOfMessages int64) ([]*MessageQueueMessage, error)
	// DeleteMessage acknowledges a message, removing it from the queue.
	DeleteMessage(msg *MessageQueueMessage) error
	// ReturnMessage makes a message immediately visible again for redelivery.
	ReturnMessage(msg *MessageQueueMessage) error
}

type MessageQueueWriter interface {
	SendMessage(body string) error
}

type SQSMessageQueue struct {
	readTimeout int64
	queueName   string
	url         string
	client      *sqs.SQS
}

// NewSQSMessageQueue resolves the queue by name and returns a client usable
// both as reader and writer. readingTimeout is the long-poll wait in seconds.
func NewSQSMessageQueue(queueName string, readingTimeout int64) (*SQSMessageQueue, error) {
	if queueName == "" {
		return nil, errors.New("please specify queue name")
	}

	if readingTimeout < 0 || readingTimeout > 20 {
		return nil, errors.New("readingTimeout should be >= 0 and <= 20")
	}

	// Initialize a session that the SDK will use to load
	// credentials from the shared credentials file. (~/.aws/credentials).
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))

	client := sqs.New(sess)

	url, err := client.GetQueueUrl(&sqs.GetQueueUrlInput{
		QueueName: &queueName,
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == sqs.ErrCodeQueueDoesNotExist {
			return nil, fmt.Errorf("unable to find queue %q", queueName)
		}
		return nil, fmt.Errorf("unable to resolve queue %q: %v", queueName, err)
	}

	return &SQSMessageQueue{
		queueName:   queueName,
		url:         *url.QueueUrl,
		readTimeout: readingTimeout,
		client:      client,
	}, nil
}

func (q *SQSMessageQueue) SendMessage(body string) error {
	_, err := q.client.SendMessage(&sqs.SendMessageInput{
		QueueUrl:    &q.url,
		MessageBody: aws.String(body),
	})
	return err
}

func (q *SQSMessageQueue) DeleteMessage(msg *MessageQueueMessage) error {
	_, err := q.client.DeleteMessage(&sqs.DeleteMessageInput{
		QueueUrl:      &q.url,
		ReceiptHandle: &msg.ReceiptHandle,
	})
	return err
}

// ReturnMessage resets the message visibility timeout to zero so that the
// next receive call gets it again.
func (q *SQSMessageQueue) ReturnMessage(msg *MessageQueueMessage) error {
	_, err := q.client.ChangeMessageVisibility(&sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &q.url,
		ReceiptHandle:     &msg.ReceiptHandle,
		VisibilityTimeout: aws.Int64(0),
	})
	return err
}

func (q *SQSMessageQueue) ReceiveMessages(maxNumberOfMessages int64) ([]*MessageQueueMessage, error) {
	if maxNumberOfMessages < 1 || maxNumberOfMessages > 10 {
		return nil, errors.New("maxNumberOfMessages should be >= 1 and <= 10")
	}

	result, err := q.client.ReceiveMessage(&sqs.ReceiveMessageInput{
		QueueUrl: &q.url,
		AttributeNames: aws.StringSlice([]string{
			"SentTimestamp",
			"ApproximateReceiveCount",
		}),
		// Polling closes as soon as there is any message received, whether 1 or many
		MaxNumberOfMessages: aws.Int64(maxNumberOfMessages),
		MessageAttributeNames: aws.StringSlice([]string{
			"All",
		}),
		WaitTimeSeconds: &q.readTimeout,
	})

	if err != nil {
		return nil, fmt.Errorf("unable to read from queue %q: %v", q.queueName, err)
	}

	res := []*MessageQueueMessage{}

	for _, msg := range result.Messages {
		var (
			count, sentTime int
		)
		if val, ok := msg.Attributes["ApproximateReceiveCount"]; ok {
			count, _ = strconv.Atoi(*val)
		}

		if val, ok := msg.Attributes["SentTimestamp"]; ok {
			sentTime, _ = strconv.Atoi(*val)
		}

		res = append(res, &MessageQueueMessage{
			Message:       msg.Body,
			MessageId:     msg.MessageId,
			ReceivedTimes: count,
			SentTimeStamp: sentTime,
			ReceiptHandle: *msg.ReceiptHandle,
		})
	}

	return res, nil
}
