package ddbsdk

import (
	"context"
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddberrors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-playground/validator/v10"
)

// AWSConfig selects the DynamoDB endpoint and credentials.
// Without static keys the default credential chain is used.
type AWSConfig struct {
	Region string `validate:"required"`
	// Endpoint overrides the service URL, e.g. http://localhost:8000 for DynamoDB Local.
	Endpoint        string `validate:"omitempty,url"`
	AccessKeyID     string `validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `validate:"required_with=AccessKeyID"`
	SessionToken    string `validate:"excluded_without=AccessKeyID"`
}

var validate = validator.New()

// NewAWSClient builds an SDK client for cfg.
func NewAWSClient(ctx context.Context, cfg AWSConfig) (*dynamodbv2.Client, error) {
	if err := ddberrors.FromStruct(validate.Struct(cfg)); err != nil {
		return nil, err
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return dynamodbv2.NewFromConfig(awsCfg, func(o *dynamodbv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
