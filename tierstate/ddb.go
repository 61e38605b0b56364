package tierstate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/tiergo/model"
)

// DynamoClient is the interface for DynamoDB operations.
type DynamoClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore implements Store backed by a DynamoDB table, so placement
// state survives process restarts.
//
// RecordAccess reads the record before deciding between a plain counter
// increment and a window restart, so the store assumes a single manager
// process owns the table. Timestamps are stored as unix nanoseconds.
//
// Table schema:
//   - Partition key: collection_id (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name tiergo-state \
//	  --attribute-definitions AttributeName=collection_id,AttributeType=S \
//	  --key-schema AttributeName=collection_id,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DynamoStore struct {
	client    DynamoClient
	tableName string
	window    time.Duration
}

// NewDynamoStore creates a DynamoDB-backed state store. window is the
// access-tracking window length; values <= 0 fall back to
// DefaultAccessWindow.
func NewDynamoStore(client DynamoClient, tableName string, window time.Duration) *DynamoStore {
	if window <= 0 {
		window = DefaultAccessWindow
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		window:    window,
	}
}

// RecordAccess notes one access. In the steady state it issues a single
// UpdateItem that adds to the counter and stamps the access time; a lapsed
// window or an unseen collection takes the slower read-then-write path.
func (s *DynamoStore) RecordAccess(ctx context.Context, id model.CollectionID) error {
	if id == "" {
		return fmt.Errorf("tierstate: empty collection id")
	}

	now := time.Now()

	st, ok, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		st = newHotState(id, now)
		st.AccessCount = 1
		st.LastAccessedAt = now
		return s.SetState(ctx, st)
	}

	nowAttr := &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixNano(), 10)}

	if now.Sub(st.AccessWindowStart) >= s.window {
		// Window elapsed: restart counting
		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        aws.String(s.tableName),
			Key:              s.key(id),
			UpdateExpression: aws.String("SET access_count = :one, access_window_start = :now, last_accessed_at = :now, updated_at = :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": &types.AttributeValueMemberN{Value: "1"},
				":now": nowAttr,
			},
		})
	} else {
		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        aws.String(s.tableName),
			Key:              s.key(id),
			UpdateExpression: aws.String("SET last_accessed_at = :now, updated_at = :now ADD access_count :one"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one": &types.AttributeValueMemberN{Value: "1"},
				":now": nowAttr,
			},
		})
	}
	if err != nil {
		return fmt.Errorf("tierstate: update item: %w", err)
	}
	return nil
}

// State returns the placement record, synthesizing a fresh hot record for
// unseen collections.
func (s *DynamoStore) State(ctx context.Context, id model.CollectionID) (model.TierState, error) {
	st, ok, err := s.load(ctx, id)
	if err != nil {
		return model.TierState{}, err
	}
	if !ok {
		return newHotState(id, time.Now()), nil
	}
	return st, nil
}

// SetState stores the full placement record.
func (s *DynamoStore) SetState(ctx context.Context, state model.TierState) error {
	if state.CollectionID == "" {
		return fmt.Errorf("tierstate: empty collection id")
	}

	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      encodeItem(state),
	})
	if err != nil {
		return fmt.Errorf("tierstate: put item: %w", err)
	}
	return nil
}

// ListByTier scans the table for records placed in tier.
func (s *DynamoStore) ListByTier(ctx context.Context, tier model.Tier) ([]model.TierState, error) {
	var out []model.TierState
	var startKey map[string]types.AttributeValue

	for {
		resp, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                aws.String(s.tableName),
			FilterExpression:         aws.String("#t = :tier"),
			ExpressionAttributeNames: map[string]string{"#t": "tier"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":tier": &types.AttributeValueMemberS{Value: tier.String()},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("tierstate: scan: %w", err)
		}

		for _, item := range resp.Items {
			st, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}

		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		startKey = resp.LastEvaluatedKey
	}

	return out, nil
}

// Pinned reports whether a collection is pinned.
func (s *DynamoStore) Pinned(ctx context.Context, id model.CollectionID) (bool, error) {
	st, ok, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	return ok && st.Pinned, nil
}

// SetPinned marks or unmarks a collection as pinned, lazily creating a hot
// record so a pin placed before the first access sticks.
func (s *DynamoStore) SetPinned(ctx context.Context, id model.CollectionID, pinned bool) error {
	if id == "" {
		return fmt.Errorf("tierstate: empty collection id")
	}

	st, ok, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		st = newHotState(id, time.Now())
	}
	st.Pinned = pinned
	return s.SetState(ctx, st)
}

// ResetWindow restarts the access-tracking window with a zero count.
func (s *DynamoStore) ResetWindow(ctx context.Context, id model.CollectionID) error {
	st, ok, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	st.AccessCount = 0
	st.AccessWindowStart = time.Now()
	return s.SetState(ctx, st)
}

// Delete removes the record for a collection.
func (s *DynamoStore) Delete(ctx context.Context, id model.CollectionID) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(id),
	})
	if err != nil {
		return fmt.Errorf("tierstate: delete item: %w", err)
	}
	return nil
}

// load fetches and decodes one record. ok is false when no record exists.
func (s *DynamoStore) load(ctx context.Context, id model.CollectionID) (model.TierState, bool, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.TierState{}, false, fmt.Errorf("tierstate: get item: %w", err)
	}
	if len(resp.Item) == 0 {
		return model.TierState{}, false, nil
	}

	st, err := decodeItem(resp.Item)
	if err != nil {
		return model.TierState{}, false, err
	}
	return st, true, nil
}

func (s *DynamoStore) key(id model.CollectionID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"collection_id": &types.AttributeValueMemberS{Value: string(id)},
	}
}

func encodeItem(st model.TierState) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"collection_id":       &types.AttributeValueMemberS{Value: string(st.CollectionID)},
		"tier":                &types.AttributeValueMemberS{Value: st.Tier.String()},
		"access_count":        &types.AttributeValueMemberN{Value: strconv.FormatInt(st.AccessCount, 10)},
		"last_accessed_at":    &types.AttributeValueMemberN{Value: encodeTime(st.LastAccessedAt)},
		"access_window_start": &types.AttributeValueMemberN{Value: encodeTime(st.AccessWindowStart)},
		"pinned":              &types.AttributeValueMemberBOOL{Value: st.Pinned},
		"created_at":          &types.AttributeValueMemberN{Value: encodeTime(st.CreatedAt)},
		"updated_at":          &types.AttributeValueMemberN{Value: encodeTime(st.UpdatedAt)},
	}
	if st.SnapshotID != "" {
		item["snapshot_id"] = &types.AttributeValueMemberS{Value: string(st.SnapshotID)}
	}
	if st.WarmKey != "" {
		item["warm_key"] = &types.AttributeValueMemberS{Value: st.WarmKey}
	}
	return item
}

func decodeItem(item map[string]types.AttributeValue) (model.TierState, error) {
	id := strAttr(item, "collection_id")
	if id == "" {
		return model.TierState{}, fmt.Errorf("tierstate: item has no collection_id")
	}

	tier, err := model.ParseTier(strAttr(item, "tier"))
	if err != nil {
		return model.TierState{}, fmt.Errorf("tierstate: item %s: %w", id, err)
	}

	st := model.TierState{
		CollectionID: model.CollectionID(id),
		Tier:         tier,
		Pinned:       boolAttr(item, "pinned"),
		SnapshotID:   model.SnapshotID(strAttr(item, "snapshot_id")),
		WarmKey:      strAttr(item, "warm_key"),
	}

	if st.AccessCount, err = numAttr(item, "access_count"); err != nil {
		return model.TierState{}, err
	}
	if st.LastAccessedAt, err = timeAttr(item, "last_accessed_at"); err != nil {
		return model.TierState{}, err
	}
	if st.AccessWindowStart, err = timeAttr(item, "access_window_start"); err != nil {
		return model.TierState{}, err
	}
	if st.CreatedAt, err = timeAttr(item, "created_at"); err != nil {
		return model.TierState{}, err
	}
	if st.UpdatedAt, err = timeAttr(item, "updated_at"); err != nil {
		return model.TierState{}, err
	}

	return st, nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if attr, ok := item[name].(*types.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}

func boolAttr(item map[string]types.AttributeValue, name string) bool {
	if attr, ok := item[name].(*types.AttributeValueMemberBOOL); ok {
		return attr.Value
	}
	return false
}

func numAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	attr, ok := item[name]
	if !ok {
		return 0, nil
	}
	num, ok := attr.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("tierstate: attribute %s is not a number", name)
	}
	n, err := strconv.ParseInt(num.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tierstate: parse attribute %s: %w", name, err)
	}
	return n, nil
}

func timeAttr(item map[string]types.AttributeValue, name string) (time.Time, error) {
	nanos, err := numAttr(item, name)
	if err != nil || nanos == 0 {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}
