package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DefaultScanChunk is the chunk size used when ScanChunks is given none.
const DefaultScanChunk = 100

// ScanChunks walks every live item of table and passes them to fn in chunks
// of at most size. Only one chunk is held at a time. A non-nil error from fn
// stops the scan and is returned.
func (s *Store) ScanChunks(ctx context.Context, table string, size int, fn func([]*Item) error) error {
	if size <= 0 {
		size = DefaultScanChunk
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          aws.String(TTLFilterExpr()),
		ExpressionAttributeNames:  TTLFilterNames(),
		ExpressionAttributeValues: TTLFilterValues(),
		Limit:                     aws.Int32(int32(size)),
		ConsistentRead:            aws.Bool(true),
	})

	chunk := make([]*Item, 0, size)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range page.Items {
			chunk = append(chunk, unmarshalItem(raw))
			if len(chunk) < size {
				continue
			}
			if err := fn(chunk); err != nil {
				return err
			}
			chunk = make([]*Item, 0, size)
		}
	}
	if len(chunk) > 0 {
		return fn(chunk)
	}
	return nil
}
