package graphdb

import (
	"context"
	"cypher_quest_backend/internal/config"
	"fmt"
	"log"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Client 封装 Bolt 驱动连接，供查询中继使用
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	Timeout  time.Duration
}

func InitGraph(cfg *config.Neo4jConfig) (*Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("graphdb: uri is required")
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("graphdb: init driver: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphdb: verify connectivity: %w", err)
	}

	log.Println("Neo4j connection established")

	return &Client{
		Driver:   driver,
		Database: cfg.Database,
		Timeout:  timeout,
	}, nil
}

// Record 一条结果记录，保留列顺序
type Record struct {
	Keys   []string
	Values []interface{}
}

// Read 执行只读查询。写保护由上层的安全过滤负责，这里只负责执行
func (c *Client) Read(ctx context.Context, cypher string, params map[string]interface{}) ([]Record, error) {
	if c == nil || c.Driver == nil {
		return nil, fmt.Errorf("graphdb: client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.Database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var records []Record
		for result.Next(ctx) {
			rec := result.Record()
			values := make([]interface{}, len(rec.Values))
			for i, v := range rec.Values {
				values[i] = flattenValue(v)
			}
			records = append(records, Record{Keys: rec.Keys, Values: values})
		}
		return records, result.Err()
	})
	if err != nil {
		return nil, err
	}
	return out.([]Record), nil
}

// Write 执行写入语句，仅供 seed/reset/import 内部固定语句使用
func (c *Client) Write(ctx context.Context, cypher string, params map[string]interface{}) error {
	if c == nil || c.Driver == nil {
		return fmt.Errorf("graphdb: client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	session := c.Driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.Database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return nil, result.Err()
	})
	return err
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return fmt.Errorf("graphdb: client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	return c.Driver.VerifyConnectivity(ctx)
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	return c.Driver.Close(ctx)
}

// flattenValue 将驱动类型转换为可 JSON 化的值。节点/关系保留 properties，
// 供判分阶段做一层属性提取
func flattenValue(v interface{}) interface{} {
	switch t := v.(type) {
	case dbtype.Node:
		return map[string]interface{}{"properties": t.Props}
	case dbtype.Relationship:
		return map[string]interface{}{"properties": t.Props}
	case dbtype.Path:
		nodes := make([]interface{}, len(t.Nodes))
		for i, n := range t.Nodes {
			nodes[i] = map[string]interface{}{"properties": n.Props}
		}
		return nodes
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = flattenValue(item)
		}
		return out
	default:
		return v
	}
}
