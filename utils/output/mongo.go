package output

import (
	"context"
	"fmt"
	"time"

	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoTimeout = 10 * time.Second

// MongoSink 把统计汇总写入MongoDB集合，每个周期一条文档
type MongoSink struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoSink 连接MongoDB
// 参数：uri-连接字符串，path-库表
// 返回：写入器；连接失败时返回错误
func NewMongoSink(ctx context.Context, uri string, path config.InputPath) (*MongoSink, error) {
	if uri == "" || path.DB == "" || path.Col == "" {
		return nil, fmt.Errorf("mongo sink needs uri, db and col, got %q %q %q", uri, path.DB, path.Col)
	}
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoSink{
		client: client,
		coll:   client.Database(path.DB).Collection(path.Col),
	}, nil
}

// Write 写入一条汇总
func (s *MongoSink) Write(ctx context.Context, summary Summary) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()
	if _, err := s.coll.InsertOne(ctx, summary); err != nil {
		return fmt.Errorf("insert summary of step %d: %w", summary.Step, err)
	}
	return nil
}

func (s *MongoSink) Close() error {
	return s.client.Disconnect(context.Background())
}
