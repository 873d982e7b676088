package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/skutrail/history"
	"github.com/jacentio/skutrail/internal/shard"
)

const (
	// batchWriteLimit is the DynamoDB cap on requests per BatchWriteItem.
	batchWriteLimit = 25

	// maxBatchAttempts bounds resubmission of unprocessed deletes.
	maxBatchAttempts = 5
)

// HistoryStore keeps SKU history in the history table. Records of one
// subject share a partition and sort by creation time.
type HistoryStore struct {
	client Client
	table  string
}

// History returns a history store backed by the configured history table.
func (s *Store) History() *HistoryStore {
	return &HistoryStore{client: s.client, table: s.config.HistoryTable}
}

// historyItem is the table layout of a history.Record.
type historyItem struct {
	PK          string         `dynamodbav:"pk"`
	SK          string         `dynamodbav:"sk"`
	ID          string         `dynamodbav:"id"`
	OldSku      *string        `dynamodbav:"old_sku,omitempty"`
	NewSku      *string        `dynamodbav:"new_sku,omitempty"`
	SubjectType string         `dynamodbav:"subject_type"`
	SubjectID   string         `dynamodbav:"subject_id"`
	EventType   string         `dynamodbav:"event_type"`
	ActorID     *string        `dynamodbav:"actor_id,omitempty"`
	ActorType   *string        `dynamodbav:"actor_type,omitempty"`
	Metadata    map[string]any `dynamodbav:"metadata,omitempty"`
	Reason      *string        `dynamodbav:"reason,omitempty"`
	IPAddress   *string        `dynamodbav:"ip_address,omitempty"`
	UserAgent   *string        `dynamodbav:"user_agent,omitempty"`
	CreatedAt   string         `dynamodbav:"created_at"`
}

func toHistoryItem(r *history.Record) historyItem {
	return historyItem{
		PK:          shard.HistoryPK(r.SubjectType, r.SubjectID),
		SK:          shard.HistorySortKey(r.CreatedAt, r.ID.String()),
		ID:          r.ID.String(),
		OldSku:      r.OldSku,
		NewSku:      r.NewSku,
		SubjectType: r.SubjectType,
		SubjectID:   r.SubjectID,
		EventType:   string(r.EventType),
		ActorID:     r.ActorID,
		ActorType:   r.ActorType,
		Metadata:    r.Metadata,
		Reason:      r.Reason,
		IPAddress:   r.IPAddress,
		UserAgent:   r.UserAgent,
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h historyItem) record() (history.Record, error) {
	id, err := uuid.Parse(h.ID)
	if err != nil {
		return history.Record{}, fmt.Errorf("history %s: parse id: %w", h.SK, err)
	}
	created, err := time.Parse(time.RFC3339Nano, h.CreatedAt)
	if err != nil {
		return history.Record{}, fmt.Errorf("history %s: parse created_at: %w", h.ID, err)
	}
	return history.Record{
		ID:          id,
		OldSku:      h.OldSku,
		NewSku:      h.NewSku,
		SubjectType: h.SubjectType,
		SubjectID:   h.SubjectID,
		EventType:   history.EventType(h.EventType),
		ActorID:     h.ActorID,
		ActorType:   h.ActorType,
		Metadata:    h.Metadata,
		Reason:      h.Reason,
		IPAddress:   h.IPAddress,
		UserAgent:   h.UserAgent,
		CreatedAt:   created,
	}, nil
}

// Append writes r. Records are never overwritten.
func (h *HistoryStore) Append(ctx context.Context, r *history.Record) error {
	av, err := attributevalue.MarshalMap(toHistoryItem(r))
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	_, err = h.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(h.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrAlreadyExists
	}
	return err
}

// List returns records matching f. A filter naming one subject reads only
// that subject's partition; anything else scans the table.
func (h *HistoryStore) List(ctx context.Context, f history.Filter) ([]history.Record, error) {
	var (
		records []history.Record
		err     error
	)
	if f.SubjectType != "" && f.SubjectID != "" {
		records, err = h.querySubject(ctx, f)
	} else {
		records, err = h.scan(ctx, "", nil, nil)
	}
	if err != nil {
		return nil, err
	}
	return f.Apply(records), nil
}

func (h *HistoryStore) querySubject(ctx context.Context, f history.Filter) ([]history.Record, error) {
	keyCond := "#pk = :pk"
	names := map[string]string{"#pk": "pk"}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: shard.HistoryPK(f.SubjectType, f.SubjectID)},
	}
	if !f.Since.IsZero() {
		keyCond += " AND #sk >= :since"
		names["#sk"] = "sk"
		values[":since"] = &types.AttributeValueMemberS{Value: shard.HistoryTimestamp(f.Since)}
	}

	paginator := dynamodb.NewQueryPaginator(h.client, &dynamodb.QueryInput{
		TableName:                 aws.String(h.table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(!f.Descending),
	})

	var records []history.Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		decoded, err := decodeHistory(page.Items)
		if err != nil {
			return nil, err
		}
		records = append(records, decoded...)
	}
	return records, nil
}

// scan reads every record matching filter, or all records when filter is empty.
func (h *HistoryStore) scan(ctx context.Context, filter string, names map[string]string, values map[string]types.AttributeValue) ([]history.Record, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(h.table)}
	if filter != "" {
		input.FilterExpression = aws.String(filter)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var records []history.Record
	paginator := dynamodb.NewScanPaginator(h.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		decoded, err := decodeHistory(page.Items)
		if err != nil {
			return nil, err
		}
		records = append(records, decoded...)
	}
	return records, nil
}

func decodeHistory(items []map[string]types.AttributeValue) ([]history.Record, error) {
	var raw []historyItem
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	records := make([]history.Record, 0, len(raw))
	for _, item := range raw {
		r, err := item.record()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func cutoffFilter(cutoff time.Time) (string, map[string]string, map[string]types.AttributeValue) {
	return "#sk < :cutoff",
		map[string]string{"#sk": "sk"},
		map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberS{Value: shard.HistoryTimestamp(cutoff)},
		}
}

// CountBefore returns how many records were created before cutoff.
func (h *HistoryStore) CountBefore(ctx context.Context, cutoff time.Time) (int, error) {
	filter, names, values := cutoffFilter(cutoff)
	paginator := dynamodb.NewScanPaginator(h.client, &dynamodb.ScanInput{
		TableName:                 aws.String(h.table),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		Select:                    types.SelectCount,
	})

	total := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		total += int(page.Count)
	}
	return total, nil
}

// DeleteBefore removes records created before cutoff and returns how many
// were removed.
func (h *HistoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	filter, names, values := cutoffFilter(cutoff)
	names["#pk"] = "pk"
	paginator := dynamodb.NewScanPaginator(h.client, &dynamodb.ScanInput{
		TableName:                 aws.String(h.table),
		FilterExpression:          aws.String(filter),
		ProjectionExpression:      aws.String("#pk, #sk"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})

	deleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, err
		}
		for keys := range slices.Chunk(page.Items, batchWriteLimit) {
			if err := h.deleteKeys(ctx, keys); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
	}
	return deleted, nil
}

func (h *HistoryStore) deleteKeys(ctx context.Context, keys []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
	}

	pending := map[string][]types.WriteRequest{h.table: requests}
	for attempt := 1; len(pending[h.table]) > 0; attempt++ {
		if attempt > maxBatchAttempts {
			return fmt.Errorf("delete history: %d requests unprocessed after %d attempts",
				len(pending[h.table]), maxBatchAttempts)
		}
		out, err := h.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("delete history: %w", err)
		}
		pending = out.UnprocessedItems
		if len(pending[h.table]) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}
	}
	return nil
}

var _ history.Store = (*HistoryStore)(nil)
