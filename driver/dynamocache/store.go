// Package dynamocache provides a DynamoDB-backed cachecore.Store.
//
// Items use a string hash key "k", a binary value "v" and the physical
// expiry "ea" in unix milliseconds.
package dynamocache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goforj/refreshcache/cachecore"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("refreshcache/dynamocache")

const (
	defaultTTL    = 5 * time.Minute
	defaultPrefix = "app"
	defaultRegion = "us-east-1"
	defaultTable  = "cache_entries"

	maxBatchWrite          = 25
	ensureTableMaxAttempts = 20
	ensureTableRetryDelay  = 150 * time.Millisecond
)

// Config selects the table and client for the DynamoDB store.
type Config struct {
	cachecore.BaseConfig
	Client DynamoAPI
	// Endpoint targets a local DynamoDB (static dummy credentials are used).
	Endpoint string
	Region   string
	Table    string
}

// DynamoAPI is the part of *dynamodb.Client the store calls.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type store struct {
	client     DynamoAPI
	table      string
	prefix     string
	defaultTTL time.Duration
}

// New builds a DynamoDB-backed cachecore.Store, creating the table when it
// does not exist.
//
// Defaults:
// - Region: "us-east-1" when empty
// - Table: "cache_entries" when empty
// - DefaultTTL: 5*time.Minute when zero
// - Prefix: "app" when empty
// - Client: auto-created when nil (uses Region and optional Endpoint)
func New(ctx context.Context, cfg Config) (cachecore.Store, error) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Client == nil {
		client, err := newClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cfg.Client = client
	}
	if err := ensureTable(ctx, cfg.Client, cfg.Table); err != nil {
		return nil, err
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &store{
		client:     cfg.Client,
		table:      cfg.Table,
		prefix:     cfg.Prefix,
		defaultTTL: ttl,
	}, nil
}

func newClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func (s *store) Driver() cachecore.Driver { return cachecore.DriverDynamo }

func (s *store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, err
	}
	if out.Item == nil || expired(out.Item, time.Now().UnixMilli()) {
		return nil, false, nil
	}
	v, ok := out.Item["v"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, errors.New("dynamodb item missing binary value")
	}
	return cloneBytes(v.Value), true, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      s.item(key, value, s.expiresAt(time.Now(), ttl)),
	})
	return err
}

// Add writes only when the key is absent or its ea has passed.
func (s *store) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := time.Now()
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                s.item(key, value, s.expiresAt(now, ttl)),
		ConditionExpression: aws.String("attribute_not_exists(k) OR ea < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.itemKey(key),
	})
	return err
}

// DeletePrefix batch-deletes every item whose key begins with prefix.
func (s *store) DeletePrefix(ctx context.Context, prefix string) error {
	return s.deleteBeginning(ctx, s.cacheKey(prefix))
}

// Flush scans for keys under the store prefix and batch-deletes them.
func (s *store) Flush(ctx context.Context) error {
	return s.deleteBeginning(ctx, s.cacheKey(""))
}

func (s *store) deleteBeginning(ctx context.Context, begins string) error {
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(s.table),
			ProjectionExpression: aws.String("k"),
			FilterExpression:     aws.String("begins_with(k, :p)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":p": &types.AttributeValueMemberS{Value: begins},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return err
		}
		if err := s.deleteRaw(ctx, out.Items); err != nil {
			return err
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *store) deleteRaw(ctx context.Context, items []map[string]types.AttributeValue) error {
	for i := 0; i < len(items); i += maxBatchWrite {
		end := min(i+maxBatchWrite, len(items))
		writes := make([]types.WriteRequest, 0, end-i)
		for _, item := range items[i:end] {
			k, ok := item["k"]
			if !ok {
				continue
			}
			writes = append(writes, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{"k": k}},
			})
		}
		if len(writes) == 0 {
			continue
		}
		if _, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: writes},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *store) expiresAt(now time.Time, ttl time.Duration) int64 {
	switch {
	case ttl == cachecore.NoExpiration:
		return math.MaxInt64
	case ttl <= 0:
		ttl = s.defaultTTL
	}
	return now.Add(ttl).UnixMilli()
}

func (s *store) item(key string, value []byte, exp int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"k":  &types.AttributeValueMemberS{Value: s.cacheKey(key)},
		"v":  &types.AttributeValueMemberB{Value: cloneBytes(value)},
		"ea": &types.AttributeValueMemberN{Value: strconv.FormatInt(exp, 10)},
	}
}

func (s *store) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: s.cacheKey(key)}}
}

func (s *store) cacheKey(key string) string {
	return s.prefix + ":" + key
}

func expired(item map[string]types.AttributeValue, nowMs int64) bool {
	av, ok := item["ea"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	exp, err := strconv.ParseInt(av.Value, 10, 64)
	if err != nil {
		return false
	}
	return nowMs > exp
}

func ensureTable(ctx context.Context, client DynamoAPI, table string) error {
	var lastErr error
	for attempt := 1; attempt <= ensureTableMaxAttempts; attempt++ {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err == nil {
			return nil
		}

		var rnfe *types.ResourceNotFoundException
		if errors.As(err, &rnfe) {
			_, createErr := client.CreateTable(ctx, &dynamodb.CreateTableInput{
				TableName: aws.String(table),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("k"), KeyType: types.KeyTypeHash},
				},
				AttributeDefinitions: []types.AttributeDefinition{
					{AttributeName: aws.String("k"), AttributeType: types.ScalarAttributeTypeS},
				},
				BillingMode: types.BillingModePayPerRequest,
			})
			if createErr == nil {
				return nil
			}
			var inUse *types.ResourceInUseException
			if errors.As(createErr, &inUse) {
				return nil
			}
			if !isStartupRetryable(createErr) {
				return createErr
			}
			lastErr = createErr
		} else {
			if !isStartupRetryable(err) {
				return err
			}
			lastErr = err
		}

		if attempt == ensureTableMaxAttempts {
			break
		}
		log.Debugw("DynamoDB not ready, retrying table setup", "table", table, "attempt", attempt, "err", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ensureTableRetryDelay):
		}
	}
	return fmt.Errorf("ensure dynamo table %q: %w", table, lastErr)
}

// isStartupRetryable matches transport errors seen while a local DynamoDB
// container is still starting.
func isStartupRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "request send failed") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
