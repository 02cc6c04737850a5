package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
)

// CountGlueDatabases lists one page of Glue databases to confirm the Data
// Catalog used by spark/hive/presto glue integration is reachable. It
// returns the number of databases on that page.
func (c *RealClient) CountGlueDatabases(ctx context.Context) (int, error) {
	out, err := c.glueClient.GetDatabases(ctx, &glue.GetDatabasesInput{
		MaxResults: aws.Int32(10),
	})
	if err != nil {
		return 0, fmt.Errorf("listing Glue databases: %w", err)
	}
	return len(out.DatabaseList), nil
}
