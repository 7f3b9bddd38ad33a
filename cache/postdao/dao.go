// Package postdao persists the post cache in DynamoDB.
package postdao

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"

	"github.com/spacecats-dao/spacecats-sync/cache"
	"github.com/spacecats-dao/spacecats-sync/post"
)

type DAO struct {
	table     *ddb.Table
	tableName string
}

var _ cache.Store = (*DAO)(nil)

func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Item{}),
		tableName: tableName,
	}
}

// CreateTableIfNotExists is used by local setups; deployed tables are
// provisioned separately.
func (d *DAO) CreateTableIfNotExists(ctx context.Context) error {
	return d.table.CreateTableIfNotExists(ctx)
}

func (d *DAO) Get(ctx context.Context, id string) (*post.DurablePost, error) {
	var item Item
	if err := d.table.Get(id).ScanWithContext(ctx, &item); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get post %v from %v: %w", id, d.tableName, err)
	}
	return &post.DurablePost{
		ID: item.ID,
		Post: post.Post{
			Content:   item.Content,
			Author:    item.Author,
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
		},
	}, nil
}

func (d *DAO) Set(ctx context.Context, id string, p post.DurablePost) error {
	item := Item{
		ID:        id,
		Content:   p.Content,
		Author:    p.Author,
		Timestamp: p.Timestamp.UnixMilli(),
	}
	if err := d.table.Put(item).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put post %v into %v: %w", id, d.tableName, err)
	}
	return nil
}
