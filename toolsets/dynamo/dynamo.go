// Package dynamo provides read-only DynamoDB tools: table scans, key
// condition queries, and single-item lookups.
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/arunksingh16/mcp/mcp"
	"github.com/arunksingh16/mcp/registry"
)

const defaultLimit = 25

// API is the subset of the DynamoDB client the toolset calls.
type API interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Set holds the DynamoDB toolset's client.
type Set struct {
	client API
}

// NewSet builds the toolset around a DynamoDB client.
func NewSet(client API) *Set {
	return &Set{client: client}
}

// Defs returns the toolset's capability definitions for registration.
func (s *Set) Defs() []registry.Def {
	return []registry.Def{
		s.scanTool(),
		s.queryTool(),
		s.getItemTool(),
	}
}

type scanArgs struct {
	TableName            string `json:"table_name" jsonschema:"description=Name of the DynamoDB table to scan"`
	FilterExpression     string `json:"filter_expression,omitempty" jsonschema:"description=Optional filter expression such as 'attribute_exists(email)'"`
	Limit                int    `json:"limit,omitempty" jsonschema:"description=Maximum number of items to return (default 25)"`
	ProjectionExpression string `json:"projection_expression,omitempty" jsonschema:"description=Comma-separated list of attributes to return"`
}

func (s *Set) scanTool() registry.ToolDef {
	return registry.NewTool[scanArgs]("scan_table", s.scan,
		registry.WithDescription("Scan a DynamoDB table with optional filters and limits"),
	)
}

func (s *Set) scan(ctx context.Context, a scanArgs) (*mcp.CallToolResult, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(a.TableName),
		Limit:     aws.Int32(limitOrDefault(a.Limit)),
	}
	if a.FilterExpression != "" {
		input.FilterExpression = aws.String(a.FilterExpression)
	}
	if a.ProjectionExpression != "" {
		input.ProjectionExpression = aws.String(a.ProjectionExpression)
	}
	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("scanning table %s: %w", a.TableName, err)
	}
	return pageResult(out.Items, out.Count, out.ScannedCount, out.LastEvaluatedKey)
}

type queryArgs struct {
	TableName                 string         `json:"table_name" jsonschema:"description=Name of the DynamoDB table to query"`
	KeyConditionExpression    string         `json:"key_condition_expression" jsonschema:"description=Key condition expression such as 'pk = :pk_val'"`
	ExpressionAttributeValues map[string]any `json:"expression_attribute_values" jsonschema:"description=Attribute values referenced by the expressions"`
	FilterExpression          string         `json:"filter_expression,omitempty" jsonschema:"description=Optional filter expression"`
	Limit                     int            `json:"limit,omitempty" jsonschema:"description=Maximum number of items to return (default 25)"`
	ProjectionExpression      string         `json:"projection_expression,omitempty" jsonschema:"description=Comma-separated list of attributes to return"`
}

func (s *Set) queryTool() registry.ToolDef {
	return registry.NewTool[queryArgs]("query_table", s.query,
		registry.WithDescription("Query a DynamoDB table using partition key and optional sort key"),
	)
}

func (s *Set) query(ctx context.Context, a queryArgs) (*mcp.CallToolResult, error) {
	values, err := attributevalue.MarshalMap(a.ExpressionAttributeValues)
	if err != nil {
		return nil, fmt.Errorf("encoding expression attribute values: %w", err)
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(a.TableName),
		KeyConditionExpression:    aws.String(a.KeyConditionExpression),
		ExpressionAttributeValues: values,
		Limit:                     aws.Int32(limitOrDefault(a.Limit)),
	}
	if a.FilterExpression != "" {
		input.FilterExpression = aws.String(a.FilterExpression)
	}
	if a.ProjectionExpression != "" {
		input.ProjectionExpression = aws.String(a.ProjectionExpression)
	}
	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("querying table %s: %w", a.TableName, err)
	}
	return pageResult(out.Items, out.Count, out.ScannedCount, out.LastEvaluatedKey)
}

type getItemArgs struct {
	TableName            string         `json:"table_name" jsonschema:"description=Name of the DynamoDB table"`
	Key                  map[string]any `json:"key" jsonschema:"description=Primary key of the item"`
	ProjectionExpression string         `json:"projection_expression,omitempty" jsonschema:"description=Comma-separated list of attributes to return"`
}

func (s *Set) getItemTool() registry.ToolDef {
	return registry.NewTool[getItemArgs]("get_item", s.getItem,
		registry.WithDescription("Get a specific item from DynamoDB table by primary key"),
	)
}

func (s *Set) getItem(ctx context.Context, a getItemArgs) (*mcp.CallToolResult, error) {
	key, err := attributevalue.MarshalMap(a.Key)
	if err != nil {
		return nil, fmt.Errorf("encoding key: %w", err)
	}
	input := &dynamodb.GetItemInput{
		TableName: aws.String(a.TableName),
		Key:       key,
	}
	if a.ProjectionExpression != "" {
		input.ProjectionExpression = aws.String(a.ProjectionExpression)
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("getting item from table %s: %w", a.TableName, err)
	}
	var item map[string]any
	if out.Item != nil {
		if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
			return nil, fmt.Errorf("decoding item: %w", err)
		}
	}
	return registry.JSONResult(map[string]any{
		"item":  item,
		"found": out.Item != nil,
	}), nil
}

func limitOrDefault(limit int) int32 {
	if limit <= 0 {
		return defaultLimit
	}
	return int32(limit)
}

// pageResult renders one page of scan or query output in the shape the
// tools' consumers expect.
func pageResult(items []map[string]types.AttributeValue, count, scanned int32, lastKey map[string]types.AttributeValue) (*mcp.CallToolResult, error) {
	var decoded []map[string]any
	if err := attributevalue.UnmarshalListOfMaps(items, &decoded); err != nil {
		return nil, fmt.Errorf("decoding items: %w", err)
	}
	if decoded == nil {
		decoded = []map[string]any{}
	}
	var lastEvaluated map[string]any
	if lastKey != nil {
		if err := attributevalue.UnmarshalMap(lastKey, &lastEvaluated); err != nil {
			return nil, fmt.Errorf("decoding pagination key: %w", err)
		}
	}
	return registry.JSONResult(map[string]any{
		"items":              decoded,
		"count":              count,
		"scanned_count":      scanned,
		"last_evaluated_key": lastEvaluated,
	}), nil
}
