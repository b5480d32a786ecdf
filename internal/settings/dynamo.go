package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStore keeps records in a DynamoDB table keyed by the string
// attribute "SettingsKey", with the JSON document stored verbatim in
// "Document". It exists for Lambda deployments that have no durable
// filesystem to point a FileStore at.
type DynamoStore struct {
	table  string
	client *dynamodb.Client
}

func NewDynamoStore(region, table string) (*DynamoStore, error) {
	if region == "" || table == "" {
		return nil, errors.New("region and table cannot be empty")
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &DynamoStore{
		table:  table,
		client: dynamodb.NewFromConfig(cfg),
	}, nil
}

func (s *DynamoStore) Load(key string, v interface{}) error {
	out, err := s.client.GetItem(context.TODO(), &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"SettingsKey": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("get settings %q: %w", key, err)
	}

	if len(out.Item) == 0 {
		return ErrNotFound
	}

	doc, ok := out.Item["Document"].(*types.AttributeValueMemberS)
	if !ok {
		return fmt.Errorf("settings %q: item has no document attribute", key)
	}

	if err := json.Unmarshal([]byte(doc.Value), v); err != nil {
		return fmt.Errorf("decode settings %q: %w", key, err)
	}

	return nil
}

func (s *DynamoStore) Save(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode settings %q: %w", key, err)
	}

	_, err = s.client.PutItem(context.TODO(), &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"SettingsKey": &types.AttributeValueMemberS{Value: key},
			"Document":    &types.AttributeValueMemberS{Value: string(raw)},
		},
	})
	if err != nil {
		return fmt.Errorf("put settings %q: %w", key, err)
	}

	return nil
}
