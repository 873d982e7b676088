package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/skutrail/internal/shard"
)

// Store provides DynamoDB operations with hierarchical entity support.
type Store struct {
	client   Client
	config   Config
	registry *Registry
}

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// NewWithRegistry creates a new Store instance with a relationship registry.
func NewWithRegistry(client Client, config Config, registry *Registry) *Store {
	s := New(client, config)
	s.registry = registry
	return s
}

// SetRegistry sets the relationship registry for cascade operations.
func (s *Store) SetRegistry(registry *Registry) {
	s.registry = registry
}

// Registry returns the relationship registry, or nil if not set.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// relationshipPK computes the sharded partition key for a relationship record.
func (s *Store) relationshipPK(parentRef, childRef string) string {
	return shard.RelationshipPK(parentRef, childRef, s.config.NumShards)
}

// Create writes a new entity in one transaction together with its parent
// check, unique value claims and relationship record.
func (s *Store) Create(ctx context.Context, entity Entity, item map[string]types.AttributeValue) error {
	now := time.Now()
	var items []types.TransactWriteItem

	parentCheckIndex := -1
	var parentRef string
	if checker, ok := entity.(ParentChecker); ok {
		parentRef = checker.ParentRef()
		if check := checker.ParentCheck(); check != nil {
			parentCheckIndex = len(items)
			items = append(items, parentCondition(check, now))
		}
	}

	stamp := now.UTC().Format(time.RFC3339)
	item[attrEntityRef] = &types.AttributeValueMemberS{Value: entity.EntityRef()}
	item[attrEntityType] = &types.AttributeValueMemberS{Value: entity.EntityType()}
	item[attrVersion] = &types.AttributeValueMemberN{Value: "1"}
	item[attrCreatedAt] = &types.AttributeValueMemberS{Value: stamp}
	item[attrUpdatedAt] = &types.AttributeValueMemberS{Value: stamp}
	if parentRef != "" {
		item[attrParentRef] = &types.AttributeValueMemberS{Value: parentRef}
	}

	constraints := uniqueConstraints(entity)
	for _, c := range constraints {
		items = append(items, s.claim(c, entity, now))
	}
	if len(constraints) > 0 {
		item[attrUniquePKs] = constraintList(constraints)
	}

	entityPutIndex := len(items)
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(entity.TableName()),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		},
	})

	if parentRef != "" {
		items = append(items, s.relationshipPut(entity, parentRef))
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapCreateTransactionError(err, parentCheckIndex, entityPutIndex)
}

func parentCondition(check *ConditionCheck, now time.Time) types.TransactWriteItem {
	expr := check.ConditionExpr
	if expr == "" {
		expr = ParentExistsCondition()
	}
	return types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(check.TableName),
			Key:                       check.Key,
			ConditionExpression:       aws.String(expr),
			ExpressionAttributeNames:  TTLFilterNames(),
			ExpressionAttributeValues: map[string]types.AttributeValue{":now": unixValue(now)},
		},
	}
}

func (s *Store) relationshipPut(entity Entity, parentRef string) types.TransactWriteItem {
	childRef := entity.EntityRef()
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(s.config.RelationshipTable),
			Item: map[string]types.AttributeValue{
				"pk":          &types.AttributeValueMemberS{Value: s.relationshipPK(parentRef, childRef)},
				"child_ref":   &types.AttributeValueMemberS{Value: childRef},
				"parent_ref":  &types.AttributeValueMemberS{Value: parentRef},
				"child_type":  &types.AttributeValueMemberS{Value: entity.EntityType()},
				"child_table": &types.AttributeValueMemberS{Value: entity.TableName()},
				"child_key":   &types.AttributeValueMemberM{Value: entity.GetKey()},
			},
		},
	}
}

// Get retrieves an entity by key, returning ErrNotFound if deleted or missing.
func (s *Store) Get(ctx context.Context, table string, key PK) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil || IsDeleted(result.Item) {
		return nil, ErrNotFound
	}
	return unmarshalItem(result.Item), nil
}

// Update updates an entity with optimistic locking.
// If the entity implements UniqueFielder and a unique value changed, the old
// claim is released and the new one taken in the same transaction.
func (s *Store) Update(ctx context.Context, entity Entity, item map[string]types.AttributeValue, expectedVersion int64) error {
	if _, ok := entity.(UniqueFielder); !ok {
		return s.updateSimple(ctx, entity, item, expectedVersion)
	}

	current, err := s.Get(ctx, entity.TableName(), entity.GetKey())
	if err != nil {
		return err
	}

	next := uniqueConstraints(entity)
	var items []types.TransactWriteItem
	now := time.Now()
	for _, c := range next {
		old := current.Attr(c.Field)
		if old == c.Value {
			continue
		}
		if old != "" {
			items = append(items, s.release(constraintFor(entity.TableName(), c.Field, old)))
		}
		items = append(items, s.claim(c, entity, now))
	}
	for _, field := range droppedFields(entity, current) {
		items = append(items, s.release(constraintFor(entity.TableName(), field, current.Attr(field))))
	}

	if len(items) == 0 {
		return s.updateSimple(ctx, entity, item, expectedVersion)
	}

	expr := buildUpdate(item, expectedVersion, now)
	expr.set("#unique_pks", "_unique_pks", ":unique_pks", constraintList(next))

	updateIndex := len(items)
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(entity.TableName()),
			Key:                       entity.GetKey(),
			UpdateExpression:          aws.String(expr.String()),
			ConditionExpression:       aws.String(expr.condition),
			ExpressionAttributeNames:  expr.names,
			ExpressionAttributeValues: expr.values,
		},
	})

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapUpdateTransactionError(err, updateIndex)
}

// updateSimple updates the entity without touching unique claims.
func (s *Store) updateSimple(ctx context.Context, entity Entity, item map[string]types.AttributeValue, expectedVersion int64) error {
	expr := buildUpdate(item, expectedVersion, time.Now())

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(entity.TableName()),
		Key:                       entity.GetKey(),
		UpdateExpression:          aws.String(expr.String()),
		ConditionExpression:       aws.String(expr.condition),
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrConcurrentModification
	}
	return err
}

// updateExpr accumulates a SET expression guarded by the version lock.
type updateExpr struct {
	clauses   []string
	names     map[string]string
	values    map[string]types.AttributeValue
	condition string
}

// buildUpdate sets every non-managed attribute of item, bumps the version
// and refreshes updated_at. The write only applies to a live entity still at
// expectedVersion.
func buildUpdate(item map[string]types.AttributeValue, expectedVersion int64, now time.Time) *updateExpr {
	e := &updateExpr{
		names: map[string]string{
			"#updated_at": attrUpdatedAt,
			"#version":    attrVersion,
			"#ttl":        attrTTL,
		},
		values: map[string]types.AttributeValue{
			":updated_at":       &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
			":one":              &types.AttributeValueMemberN{Value: "1"},
			":expected_version": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		},
		condition: "#version = :expected_version AND attribute_not_exists(#ttl)",
	}

	i := 0
	for k, v := range item {
		if managed(k) {
			continue
		}
		e.set(fmt.Sprintf("#attr%d", i), k, fmt.Sprintf(":val%d", i), v)
		i++
	}
	e.clauses = append(e.clauses, "#updated_at = :updated_at", "#version = #version + :one")
	return e
}

func (e *updateExpr) set(nameKey, name, valueKey string, value types.AttributeValue) {
	e.names[nameKey] = name
	e.values[valueKey] = value
	e.clauses = append(e.clauses, nameKey+" = "+valueKey)
}

func (e *updateExpr) String() string {
	return "SET " + strings.Join(e.clauses, ", ")
}

// mapCreateTransactionError maps DynamoDB transaction errors for Create operations.
// parentCheckIndex is the index of the parent check item (-1 if none).
// entityPutIndex is the index of the entity put item.
func mapCreateTransactionError(err error, parentCheckIndex, entityPutIndex int) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if aws.ToString(reason.Code) != "ConditionalCheckFailed" {
				continue
			}
			switch i {
			case parentCheckIndex:
				return ErrParentNotFound
			case entityPutIndex:
				return ErrAlreadyExists
			default:
				return ErrDuplicateValue
			}
		}
	}
	return err
}

// mapUpdateTransactionError maps DynamoDB transaction errors for Update
// operations. A failed check on updateIndex is a version conflict; any
// other failed check is a taken unique value.
func mapUpdateTransactionError(err error, updateIndex int) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if aws.ToString(reason.Code) != "ConditionalCheckFailed" {
				continue
			}
			if i == updateIndex {
				return ErrConcurrentModification
			}
			return ErrDuplicateValue
		}
	}
	return err
}

// unmarshalItem converts a DynamoDB item to an Item struct.
func unmarshalItem(raw map[string]types.AttributeValue) *Item {
	item := &Item{Raw: raw}

	if v, ok := raw[attrVersion].(*types.AttributeValueMemberN); ok {
		item.Version, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	item.CreatedAt = item.Attr(attrCreatedAt)
	item.UpdatedAt = item.Attr(attrUpdatedAt)
	item.EntityRef = item.Attr(attrEntityRef)
	item.EntityType = item.Attr(attrEntityType)
	item.ParentRef = item.Attr(attrParentRef)
	return item
}

// unmarshalChildRef converts a relationship item to a ChildRef.
func unmarshalChildRef(item map[string]types.AttributeValue, shardPK string) ChildRef {
	ref := ChildRef{ShardPK: shardPK}

	if v, ok := item["child_ref"].(*types.AttributeValueMemberS); ok {
		ref.Ref = v.Value
	}
	if v, ok := item["child_table"].(*types.AttributeValueMemberS); ok {
		ref.TableName = v.Value
	}
	if v, ok := item["child_key"].(*types.AttributeValueMemberM); ok {
		ref.Key = v.Value
	}
	return ref
}
