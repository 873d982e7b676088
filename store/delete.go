package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/skutrail/internal/shard"
)

// DeleteOptions configures delete behavior.
type DeleteOptions struct {
	// Cascade enables cascading delete of children via TTL.
	Cascade bool

	// OrphanProtect fails the delete if active children exist.
	OrphanProtect bool
}

// Delete marks an entity deleted by setting its TTL. Children, relationship
// records and unique claims follow through the stream handler.
// It returns ErrAlreadyDeleted when the entity is missing or already
// carries a TTL.
func (s *Store) Delete(ctx context.Context, entity Entity, opts DeleteOptions) error {
	if opts.OrphanProtect && !opts.Cascade {
		hasChildren, err := s.HasActiveChildren(ctx, entity)
		if err != nil {
			return err
		}
		if hasChildren {
			return ErrHasChildren
		}
	}

	err := s.setTTL(ctx, entity.TableName(), entity.GetKey(), time.Now().Unix())
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrAlreadyDeleted
	}
	return err
}

// SetTTL marks an entity for deletion by setting its TTL to now.
// An entity that is already marked is left unchanged.
func (s *Store) SetTTL(ctx context.Context, entity Entity) error {
	return s.SetTTLByKey(ctx, entity.TableName(), entity.GetKey(), time.Now().Unix())
}

// SetTTLByKey sets TTL on an entity by table and key. The version is bumped
// so that in-flight updates fail their lock.
func (s *Store) SetTTLByKey(ctx context.Context, table string, key PK, ttl int64) error {
	return ignoreConditionFailure(s.setTTL(ctx, table, key, ttl))
}

func (s *Store) setTTL(ctx context.Context, table string, key PK, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(table),
		Key:                 key,
		UpdateExpression:    aws.String("SET #ttl = :ttl, #version = #version + :one"),
		ConditionExpression: aws.String("attribute_exists(id) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl":     attrTTL,
			"#version": attrVersion,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": unixValue(time.Unix(ttl, 0)),
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	return err
}

// SetRelationshipTTL sets TTL on a relationship record.
func (s *Store) SetRelationshipTTL(ctx context.Context, childRef, parentRef string, ttl int64) error {
	return s.setRecordTTL(ctx, s.config.RelationshipTable, map[string]types.AttributeValue{
		"pk":        &types.AttributeValueMemberS{Value: s.relationshipPK(parentRef, childRef)},
		"child_ref": &types.AttributeValueMemberS{Value: childRef},
	}, ttl)
}

// SetUniqueConstraintTTL sets TTL on a unique constraint record, releasing
// the value for reuse.
func (s *Store) SetUniqueConstraintTTL(ctx context.Context, pk string, ttl int64) error {
	return s.setRecordTTL(ctx, s.config.UniqueTable, constraintKey(pk), ttl)
}

func (s *Store) setRecordTTL(ctx context.Context, table string, key map[string]types.AttributeValue, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       key,
		UpdateExpression:          aws.String("SET #ttl = :ttl"),
		ConditionExpression:       aws.String("attribute_exists(pk) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames:  TTLFilterNames(),
		ExpressionAttributeValues: map[string]types.AttributeValue{":ttl": unixValue(time.Unix(ttl, 0))},
	})
	return ignoreConditionFailure(err)
}

// ignoreConditionFailure treats an already-set (or missing) TTL target as done.
func ignoreConditionFailure(err error) error {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// HasActiveChildren checks if an entity has any active (non-deleted)
// children. Types the registry knows to be leaves are answered without a
// query.
func (s *Store) HasActiveChildren(ctx context.Context, entity Entity) (bool, error) {
	if s.registry != nil && !s.registry.HasChildren(entity.EntityType()) {
		return false, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var found atomic.Bool
	g, ctx := errgroup.WithContext(ctx)
	for n := range s.config.NumShards {
		shardPK := shard.Key(entity.EntityRef(), n)
		g.Go(func() error {
			// The TTL filter runs after a page is read, so a page can come
			// back empty while later pages still hold live children.
			paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
				TableName:                 aws.String(s.config.RelationshipTable),
				KeyConditionExpression:    aws.String("pk = :pk"),
				FilterExpression:          aws.String(TTLFilterExpr()),
				ExpressionAttributeNames:  TTLFilterNames(),
				ExpressionAttributeValues: mergeExprValues(TTLFilterValues(), map[string]types.AttributeValue{":pk": &types.AttributeValueMemberS{Value: shardPK}}),
			})
			for paginator.HasMorePages() && !found.Load() {
				page, err := paginator.NextPage(ctx)
				if err != nil {
					if found.Load() && errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				if len(page.Items) > 0 {
					found.Store(true)
					cancel()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !found.Load() {
		return false, err
	}
	return found.Load(), nil
}

// QueryAllChildren returns all children of an entity (including deleted ones).
// Cascade delete uses it to propagate TTL.
func (s *Store) QueryAllChildren(ctx context.Context, parentRef string) ([]ChildRef, error) {
	var (
		mu       sync.Mutex
		children []ChildRef
	)

	g, ctx := errgroup.WithContext(ctx)
	for n := range s.config.NumShards {
		shardPK := shard.Key(parentRef, n)
		g.Go(func() error {
			paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
				TableName:              aws.String(s.config.RelationshipTable),
				KeyConditionExpression: aws.String("pk = :pk"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk": &types.AttributeValueMemberS{Value: shardPK},
				},
			})

			var found []ChildRef
			for paginator.HasMorePages() {
				page, err := paginator.NextPage(ctx)
				if err != nil {
					return err
				}
				for _, item := range page.Items {
					found = append(found, unmarshalChildRef(item, shardPK))
				}
			}

			mu.Lock()
			children = append(children, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return children, nil
}
