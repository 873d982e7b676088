package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/skutrail/internal/shard"
)

const constraintSK = "CONSTRAINT"

// constraint is one claimed unique value.
type constraint struct {
	PK    string
	Table string
	Field string
	Value string
}

func constraintFor(table, field, value string) constraint {
	return constraint{
		PK:    shard.UniqueConstraintPK(table, field, value),
		Table: table,
		Field: field,
		Value: value,
	}
}

// uniqueConstraints returns the entity's non-empty unique values ordered by
// field name.
func uniqueConstraints(entity Entity) []constraint {
	uf, ok := entity.(UniqueFielder)
	if !ok {
		return nil
	}
	fields := uf.UniqueFields()
	var out []constraint
	for field, value := range fields {
		if value == "" {
			continue
		}
		out = append(out, constraintFor(entity.TableName(), field, value))
	}
	slices.SortFunc(out, func(a, b constraint) int {
		return strings.Compare(a.Field, b.Field)
	})
	return out
}

// droppedFields lists unique fields that were set on current and are now
// empty on entity.
func droppedFields(entity Entity, current *Item) []string {
	uf, ok := entity.(UniqueFielder)
	if !ok {
		return nil
	}
	var out []string
	for field, value := range uf.UniqueFields() {
		if value == "" && current.Attr(field) != "" {
			out = append(out, field)
		}
	}
	slices.Sort(out)
	return out
}

func constraintList(cs []constraint) types.AttributeValue {
	list := make([]types.AttributeValue, 0, len(cs))
	for _, c := range cs {
		list = append(list, &types.AttributeValueMemberS{Value: c.PK})
	}
	return &types.AttributeValueMemberL{Value: list}
}

func constraintKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: constraintSK},
	}
}

// claim puts the constraint record. It succeeds when the value is free or
// its previous owner's TTL has passed but DynamoDB has not yet removed it.
func (s *Store) claim(c constraint, entity Entity, now time.Time) types.TransactWriteItem {
	item := constraintKey(c.PK)
	item["table_name"] = &types.AttributeValueMemberS{Value: c.Table}
	item["entity_type"] = &types.AttributeValueMemberS{Value: entity.EntityType()}
	item["field_name"] = &types.AttributeValueMemberS{Value: c.Field}
	item["field_value"] = &types.AttributeValueMemberS{Value: c.Value}
	item["entity_ref"] = &types.AttributeValueMemberS{Value: entity.EntityRef()}

	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 aws.String(s.config.UniqueTable),
			Item:                      item,
			ConditionExpression:       aws.String("attribute_not_exists(pk) OR #ttl <= :now"),
			ExpressionAttributeNames:  TTLFilterNames(),
			ExpressionAttributeValues: map[string]types.AttributeValue{":now": unixValue(now)},
		},
	}
}

func (s *Store) release(c constraint) types.TransactWriteItem {
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(s.config.UniqueTable),
			Key:       constraintKey(c.PK),
		},
	}
}

// UniqueOwner returns the entity ref that holds value for field in table.
// found is false when the value is unclaimed or its claim has expired.
func (s *Store) UniqueOwner(ctx context.Context, table, field, value string) (ref string, found bool, err error) {
	c := constraintFor(table, field, value)
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.UniqueTable),
		Key:            constraintKey(c.PK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, err
	}
	if result.Item == nil || IsDeleted(result.Item) {
		return "", false, nil
	}
	owner := &Item{Raw: result.Item}
	return owner.Attr(attrEntityRef), true, nil
}
