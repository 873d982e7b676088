// Package stream consumes DynamoDB stream records from the catalog tables
// and completes deletes: children, relationship records and SKU claims of a
// deleted entity receive its TTL, and per-type hooks are told about it.
package stream

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jacentio/skutrail/store"
)

// Cascader is the store surface the handler writes through.
// *store.Store satisfies it.
type Cascader interface {
	QueryAllChildren(ctx context.Context, parentRef string) ([]store.ChildRef, error)
	SetTTLByKey(ctx context.Context, table string, key store.PK, ttl int64) error
	SetRelationshipTTL(ctx context.Context, childRef, parentRef string, ttl int64) error
	SetUniqueConstraintTTL(ctx context.Context, pk string, ttl int64) error
	Registry() *store.Registry
}

// Deleted describes an entity whose TTL was just set.
type Deleted struct {
	EntityType string
	EntityRef  string
	ParentRef  string
	TTL        int64

	// Key is the entity's primary key.
	Key store.PK

	// Image is the entity as written with its TTL.
	Image map[string]events.DynamoDBAttributeValue
}

// Attr returns the string attribute name from the image, or "".
func (d Deleted) Attr(name string) string {
	return getStringAttr(d.Image, name)
}

// DeleteHook is called once the cascade for an entity has been applied.
type DeleteHook func(ctx context.Context, d Deleted) error

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	store  Cascader
	logger zerolog.Logger
	hooks  map[string][]DeleteHook
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithDeleteHook runs hook for every deleted entity of entityType.
func WithDeleteHook(entityType string, hook DeleteHook) Option {
	return func(h *Handler) {
		h.hooks[entityType] = append(h.hooks[entityType], hook)
	}
}

// NewHandler creates a new stream handler.
func NewHandler(s Cascader, opts ...Option) *Handler {
	h := &Handler{
		store:  s,
		logger: log.Logger,
		hooks:  make(map[string][]DeleteHook),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleCascadeDelete processes DynamoDB stream events to propagate TTL to
// children. It is the Lambda entry point; a returned error makes Lambda
// retry the batch.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error().
				Err(err).
				Str("event_id", record.EventID).
				Msg("failed to process record")
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "MODIFY" {
		return nil
	}

	oldTTL := getNumberAttr(record.Change.OldImage, "ttl")
	newTTL := getNumberAttr(record.Change.NewImage, "ttl")
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	image := record.Change.NewImage
	d := Deleted{
		EntityType: getStringAttr(image, "entity_type"),
		EntityRef:  getStringAttr(image, "entity_ref"),
		ParentRef:  getStringAttr(image, "parent_ref"),
		TTL:        newTTL,
		Key:        ConvertStreamKey(record.Change.Keys),
		Image:      image,
	}
	if d.EntityType == "" {
		d.EntityType, _, _ = strings.Cut(d.EntityRef, "#")
	}
	uniquePKs := getStringListAttr(image, "_unique_pks")

	logger := h.logger.With().
		Str("entity_ref", d.EntityRef).
		Str("parent_ref", d.ParentRef).
		Int64("ttl", newTTL).
		Logger()
	logger.Info().Msg("processing cascade delete")

	children, err := h.children(ctx, d)
	if err != nil {
		return fmt.Errorf("query children: %w", err)
	}

	// Each child's own stream record continues the cascade below it.
	for _, child := range children {
		if err := h.store.SetTTLByKey(ctx, child.TableName, child.Key, newTTL); err != nil {
			logger.Warn().Err(err).Str("child", child.Ref).Msg("failed to set TTL on child")
		}
	}

	if d.ParentRef != "" {
		if err := h.store.SetRelationshipTTL(ctx, d.EntityRef, d.ParentRef, newTTL); err != nil {
			logger.Warn().Err(err).Msg("failed to set relationship TTL")
		}
	}

	for _, pk := range uniquePKs {
		if err := h.store.SetUniqueConstraintTTL(ctx, pk, newTTL); err != nil {
			logger.Warn().Err(err).Str("pk", pk).Msg("failed to set unique constraint TTL")
		}
	}

	for _, hook := range h.hooks[d.EntityType] {
		if err := hook(ctx, d); err != nil {
			logger.Warn().Err(err).Str("entity_type", d.EntityType).Msg("delete hook failed")
		}
	}

	logger.Info().
		Int("children", len(children)).
		Int("unique_constraints", len(uniquePKs)).
		Msg("cascade delete completed")
	return nil
}

// children lists d's children, skipping the query for types the registry
// knows have none.
func (h *Handler) children(ctx context.Context, d Deleted) ([]store.ChildRef, error) {
	if reg := h.store.Registry(); reg != nil && d.EntityType != "" && !reg.HasChildren(d.EntityType) {
		return nil, nil
	}
	return h.store.QueryAllChildren(ctx, d.EntityRef)
}

func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeNumber {
		n, _ := strconv.ParseInt(v.Number(), 10, 64)
		return n
	}
	return 0
}

func getStringListAttr(image map[string]events.DynamoDBAttributeValue, key string) []string {
	v, ok := image[key]
	if !ok || v.DataType() != events.DataTypeList {
		return nil
	}
	var result []string
	for _, item := range v.List() {
		if item.DataType() == events.DataTypeString {
			result = append(result, item.String())
		}
	}
	return result
}

// ConvertStreamKey converts a DynamoDB stream key to a store.PK.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) store.PK {
	result := make(store.PK)
	for k, v := range streamKey {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return result
}
