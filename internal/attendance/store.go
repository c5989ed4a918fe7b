package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Record is one check-in event, keyed by identity and UTC day.
type Record struct {
	ExternalImageID string `dynamodbav:"externalImageId" json:"externalImageId"`
	CheckinDay      string `dynamodbav:"checkinDay" json:"checkinDay"`
	CheckinTime     string `dynamodbav:"checkinTime" json:"checkinTime"`
}

// Day formats a timestamp as the store's sort key.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// NewRecord builds a record for the given identity at time now.
func NewRecord(externalImageID string, now time.Time) Record {
	now = now.UTC()
	return Record{
		ExternalImageID: externalImageID,
		CheckinDay:      Day(now),
		CheckinTime:     now.Format("15:04:05"),
	}
}

type api interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store persists attendance records in DynamoDB. It is the source of truth;
// any cache in front of it is advisory only.
type Store struct {
	api   api
	table string
}

// NewStore creates a store bound to one table.
func NewStore(api *dynamodb.Client, table string) *Store {
	return &Store{api: api, table: table}
}

// Put writes a record conditionally on (externalImageId, checkinDay) not
// existing yet, which makes repeated check-ins on the same day idempotent.
// Returns true when the record was written, false when the day was already
// recorded.
func (s *Store) Put(ctx context.Context, rec Record) (bool, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("attendance: marshal record: %w", err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(checkinDay)"),
	})
	if err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("attendance: put record: %w", err)
	}
	return true, nil
}

// QueryDay returns all records for one identity on one day.
func (s *Store) QueryDay(ctx context.Context, externalImageID, day string) ([]Record, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("externalImageId = :pk AND checkinDay = :day"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":  &ddbtypes.AttributeValueMemberS{Value: externalImageID},
			":day": &ddbtypes.AttributeValueMemberS{Value: day},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("attendance: query day: %w", err)
	}
	var records []Record
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &records); err != nil {
		return nil, fmt.Errorf("attendance: unmarshal records: %w", err)
	}
	return records, nil
}
