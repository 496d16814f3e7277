package repository

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

	"concierge-agent/internal/domain"
)

const (
	skPrefixMsg    = "MSG#"
	skMeta         = "META#"
	statusComplete = "complete"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore keeps conversation memory in a single DynamoDB table. Each
// entry is a MSG# item keyed by generation and turn number; a META# item
// tracks the live generation and turn count so concurrent writers from other
// instances fail their conditional write instead of overwriting each other.
//
// With a positive ttl every item of a conversation carries the same expiry,
// fixed at its first turn, so the whole conversation expires at once. Turns
// after that start a new generation and never see leftovers of the old one.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoStore creates a DynamoDB-backed memory store. A zero ttl writes no
// ttl attribute and keeps conversations forever.
func NewDynamoStore(api dynamodbAPI, tableName string, ttl time.Duration) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl < 0 {
		return nil, errors.New("repository: ttl must not be negative")
	}
	return &DynamoStore{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

func msgPrefix(generation string) string {
	return skPrefixMsg + generation + "#"
}

// msgSK returns the sort key for the entry of the given turn. Zero padding
// keeps lexical order equal to turn order.
func msgSK(generation string, turn int) string {
	return fmt.Sprintf("%s%010d", msgPrefix(generation), turn)
}

func (s *DynamoStore) newGeneration() string {
	return strconv.FormatInt(s.now().UnixNano(), 36)
}

func (s *DynamoStore) expiry() int64 {
	if s.ttl == 0 {
		return 0
	}
	return s.now().Add(s.ttl).Unix()
}

func (s *DynamoStore) alive(meta domain.ConversationMeta) bool {
	return meta.TTL == 0 || meta.TTL > s.now().Unix()
}

// History returns the conversation's entries oldest first. With a positive
// window only the newest window entries are read.
func (s *DynamoStore) History(ctx context.Context, conversationID string, window int) ([]domain.MemoryEntry, error) {
	meta, ok, err := s.loadMeta(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("repository: History: %w", err)
	}
	if !ok || !s.alive(meta) {
		return []domain.MemoryEntry{}, nil
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: msgPrefix(meta.Generation)},
		},
		ConsistentRead: aws.Bool(true),
	}
	if window > 0 {
		// Read newest first so LIMIT favors the most recent context.
		in.ScanIndexForward = aws.Bool(false)
		in.Limit = aws.Int32(int32(window))
	} else {
		in.ScanIndexForward = aws.Bool(true)
	}

	var msgs []domain.Message
	for {
		out, err := s.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: History query: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("repository: History unmarshal: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if window > 0 || len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	if window > 0 {
		// Reverse to chronological order before returning to prompt assembly.
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	entries := make([]domain.MemoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, domain.MemoryEntry{UserText: m.Text, Summary: m.Summary})
	}
	return entries, nil
}

// Append writes entry as the next turn of the conversation. A missing or
// expired META# item starts a new generation at turn 1.
func (s *DynamoStore) Append(ctx context.Context, conversationID string, entry domain.MemoryEntry) error {
	meta, ok, err := s.loadMeta(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}

	prevTurns := 0
	if ok && s.alive(meta) {
		prevTurns = meta.Turns
	} else {
		meta.Generation = s.newGeneration()
		meta.TTL = s.expiry()
	}
	next := s.newConversationMeta(conversationID, meta.Generation, prevTurns+1, meta.TTL)
	msg := s.newMessage(conversationID, entry, next)
	if err := s.saveTurn(ctx, msg, next, prevTurns); err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// loadMeta reads the META# item. ok is false when the conversation has none.
func (s *DynamoStore) loadMeta(ctx context.Context, conversationID string) (meta domain.ConversationMeta, ok bool, err error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return meta, false, fmt.Errorf("turn count get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return meta, false, nil
	}

	if meta.Turns, err = intAttr(out.Item, "turns"); err != nil {
		return meta, false, fmt.Errorf("decode turns: %w", err)
	}
	if meta.Generation, err = strAttr(out.Item, "gen"); err != nil {
		return meta, false, fmt.Errorf("decode generation: %w", err)
	}
	if _, has := out.Item["ttl"]; has {
		ttl, err := intAttr(out.Item, "ttl")
		if err != nil {
			return meta, false, fmt.Errorf("decode ttl: %w", err)
		}
		meta.TTL = int64(ttl)
	}
	return meta, true, nil
}

// saveTurn writes the message and updated metadata in one transaction. The
// meta put only succeeds if the generation and turn count are unchanged, or,
// for a first turn, if no live META# item exists.
func (s *DynamoStore) saveTurn(ctx context.Context, msg domain.Message, meta domain.ConversationMeta, prevTurns int) error {
	metaPut := &types.Put{
		TableName: aws.String(s.tableName),
		Item:      metaItem(meta),
	}
	if prevTurns == 0 {
		metaPut.ConditionExpression = aws.String("attribute_not_exists(PK) OR #ttl <= :now")
		metaPut.ExpressionAttributeNames = map[string]string{"#ttl": "ttl"}
		metaPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		}
	} else {
		metaPut.ConditionExpression = aws.String("turns = :prev AND gen = :gen")
		metaPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberN{Value: strconv.Itoa(prevTurns)},
			":gen":  &types.AttributeValueMemberS{Value: meta.Generation},
		}
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                messageItem(msg),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{Put: metaPut},
		},
	})
	if err != nil {
		return fmt.Errorf("save turn %d: %w", meta.Turns, err)
	}
	return nil
}

func (s *DynamoStore) newMessage(conversationID string, entry domain.MemoryEntry, meta domain.ConversationMeta) domain.Message {
	return domain.Message{
		PK:             convPK(conversationID),
		SK:             msgSK(meta.Generation, meta.Turns),
		ConversationID: conversationID,
		Text:           entry.UserText,
		Summary:        entry.Summary,
		Status:         statusComplete,
		TTL:            meta.TTL,
	}
}

func (s *DynamoStore) newConversationMeta(conversationID, generation string, turns int, ttl int64) domain.ConversationMeta {
	return domain.ConversationMeta{
		PK:             convPK(conversationID),
		SK:             skMeta,
		ConversationID: conversationID,
		LastActivity:   s.now().UTC().Format(time.RFC3339),
		Turns:          turns,
		Generation:     generation,
		TTL:            ttl,
	}
}

// itemToMessage converts a DynamoDB attribute map to a Message.
func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Message{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Message{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Message{}, err
	}
	summary, err := strAttr(item, "summary")
	if err != nil {
		return domain.Message{}, err
	}
	status, _ := strAttr(item, "status") // allow empty

	return domain.Message{
		PK:      pk,
		SK:      sk,
		Text:    text,
		Summary: summary,
		Status:  status,
	}, nil
}

func messageItem(msg domain.Message) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: msg.PK},
		"SK":             &types.AttributeValueMemberS{Value: msg.SK},
		"conversationId": &types.AttributeValueMemberS{Value: msg.ConversationID},
		"text":           &types.AttributeValueMemberS{Value: msg.Text},
		"summary":        &types.AttributeValueMemberS{Value: msg.Summary},
		"status":         &types.AttributeValueMemberS{Value: msg.Status},
	}
	setTTL(item, msg.TTL)
	return item
}

func metaItem(meta domain.ConversationMeta) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: meta.PK},
		"SK":             &types.AttributeValueMemberS{Value: meta.SK},
		"conversationId": &types.AttributeValueMemberS{Value: meta.ConversationID},
		"lastActivity":   &types.AttributeValueMemberS{Value: meta.LastActivity},
		"turns":          &types.AttributeValueMemberN{Value: strconv.Itoa(meta.Turns)},
		"gen":            &types.AttributeValueMemberS{Value: meta.Generation},
	}
	setTTL(item, meta.TTL)
	return item
}

// setTTL adds the expiry attribute; zero means the item never expires.
func setTTL(item map[string]types.AttributeValue, ttl int64) {
	if ttl > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)}
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
