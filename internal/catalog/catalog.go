// Package catalog records the partitions written by the record validator so
// query engines and operators can find them.
//
// Entries live in one DynamoDB table using a single-table layout:
//
//	PK = TABLE#<database>/<table>
//	SK = PART#<s3 location>
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

const (
	pkPrefix = "TABLE#"
	skPrefix = "PART#"

	// DefaultDatabase is the catalog database of the arrival hub tables.
	DefaultDatabase = "datalake-arrivalhub"
)

// Output formats.
const (
	FormatParquet = "parquet"
	FormatJSON    = "json"
)

// Partition describes one written data file.
type Partition struct {
	Database    string    `dynamodbav:"database"`
	Table       string    `dynamodbav:"table"`
	Location    string    `dynamodbav:"location"`
	Format      string    `dynamodbav:"format"`
	Compression string    `dynamodbav:"compression,omitempty"`
	SourceID    string    `dynamodbav:"sourceId"`
	Records     int       `dynamodbav:"records"`
	Bytes       int64     `dynamodbav:"bytes"`
	WrittenAt   time.Time `dynamodbav:"writtenAt"`
}

// Catalog registers partitions.
type Catalog interface {
	Register(ctx context.Context, p Partition) error
}

// Reader lists registered partitions.
type Reader interface {
	Partitions(ctx context.Context, database, table string) ([]Partition, error)
}

// Nop discards registrations. Used when no catalog table is configured.
type Nop struct{}

func (Nop) Register(context.Context, Partition) error { return nil }

// DynamoAPI is the subset of *dynamodb.Client used by DynamoCatalog.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoCatalog stores partitions in a DynamoDB table.
type DynamoCatalog struct {
	client    DynamoAPI
	tableName string
}

// Compile-time interface check.
var (
	_ Catalog = (*DynamoCatalog)(nil)
	_ Reader  = (*DynamoCatalog)(nil)
)

// NewDynamoCatalog returns a catalog over the given DynamoDB table.
func NewDynamoCatalog(client DynamoAPI, tableName string) *DynamoCatalog {
	return &DynamoCatalog{client: client, tableName: tableName}
}

func tablePK(database, table string) string {
	return pkPrefix + database + "/" + table
}

// Register writes p. Registering the same location twice overwrites the entry.
func (c *DynamoCatalog) Register(ctx context.Context, p Partition) error {
	if p.WrittenAt.IsZero() {
		p.WrittenAt = time.Now().UTC()
	}
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal partition: %w", err)
	}
	pk, sk := tablePK(p.Database, p.Table), skPrefix+p.Location
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &c.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	log.Debug().Str("table", p.Table).Str("location", p.Location).Int("records", p.Records).Msg("Partition registered")
	return nil
}

// Partitions returns every partition registered for database/table.
func (c *DynamoCatalog) Partitions(ctx context.Context, database, table string) ([]Partition, error) {
	pk := tablePK(database, table)
	input := &dynamodb.QueryInput{
		TableName:              &c.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
			":sk": &types.AttributeValueMemberS{Value: skPrefix},
		},
	}

	var parts []Partition
	for {
		result, err := c.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s: %w", pk, err)
		}
		var page []Partition
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal partitions: %w", err)
		}
		parts = append(parts, page...)
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return parts, nil
}
