package ddbsdk

import (
	"context"
	"fmt"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CreateTable creates the bound table with its GSIs.
func (c *Client) CreateTable(ctx context.Context) error {
	log := c.logger("create_table")
	log.Info().Int("gsis", len(c.table.GSIs())).Msg("creating table")
	if _, err := c.awsddb.CreateTable(ctx, c.table.CreateTableInput()); err != nil {
		return fmt.Errorf("failed to create table %q: %w", c.table.Name(), err)
	}
	return nil
}

// DescribeTable returns the stored description of the bound table.
func (c *Client) DescribeTable(ctx context.Context) (*types.TableDescription, error) {
	res, err := c.awsddb.DescribeTable(ctx, &dynamodbv2.DescribeTableInput{TableName: ptr(c.table.Name())})
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %q: %w", c.table.Name(), err)
	}
	return res.Table, nil
}
