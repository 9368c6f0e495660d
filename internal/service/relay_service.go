package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"cypher_quest_backend/internal/config"
	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/internal/util"
	"cypher_quest_backend/pkg/graphdb"
	"cypher_quest_backend/pkg/logger"
	"cypher_quest_backend/pkg/monitoring"
)

// GraphExecutor Bolt 通道的最小读接口，便于测试替换
type GraphExecutor interface {
	Read(ctx context.Context, cypher string, params map[string]interface{}) ([]graphdb.Record, error)
	Ping(ctx context.Context) error
}

// ExecutionResult 中继执行结果。Degraded 表示数据来自降级兜底，
// 前端据此提示非实时数据
type ExecutionResult struct {
	Rows     []model.Row `json:"rows"`
	RowCount int         `json:"rowCount"`
	Channel  string      `json:"channel"` // bolt / http / mock
	Degraded bool        `json:"degraded"`
}

// ExecutionTrace 诊断环形缓冲里的一条执行记录
type ExecutionTrace struct {
	Query     string    `json:"query"`
	Channel   string    `json:"channel"`
	Status    string    `json:"status"`
	ElapsedMs int64     `json:"elapsedMs"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

const traceRingSize = 64

// RelayService 查询中继：安全过滤 → 限流改写 → Bolt 主通道 →
// HTTP 事务接口备选 → 固定数据集兜底
type RelayService struct {
	graph        GraphExecutor
	safety       *SafetyService
	httpClient   *http.Client
	httpEndpoint string

	mu    sync.RWMutex
	relay config.RelayConfig

	traceMu    sync.Mutex
	traces     [traceRingSize]ExecutionTrace
	traceNext  int
	traceCount int
}

func NewRelayService(graph GraphExecutor, safety *SafetyService, cfg *config.Config) *RelayService {
	timeout := time.Duration(cfg.Neo4j.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RelayService{
		graph:        graph,
		safety:       safety,
		httpClient:   &http.Client{Timeout: timeout},
		httpEndpoint: cfg.Neo4j.HTTPEndpoint,
		relay:        cfg.Relay,
	}
}

// SetRelay 配置热更新回调入口
func (s *RelayService) SetRelay(relay config.RelayConfig) {
	s.mu.Lock()
	s.relay = relay
	s.mu.Unlock()
}

// Execute 执行一条自由查询。强制安全层先裁定，任何写入关键字直接拒绝，
// 不会到达任何后端通道
func (s *RelayService) Execute(ctx context.Context, query string, params map[string]interface{}) (*ExecutionResult, error) {
	if verdict := s.safety.Enforce(query); verdict.Forbidden {
		monitoring.QueryExecutions.WithLabelValues("none", "blocked").Inc()
		s.record(query, "none", "blocked", 0, verdict.Reason)
		return nil, fmt.Errorf("%w: %s", util.ErrQueryForbidden, verdict.Reason)
	}

	s.mu.RLock()
	relay := s.relay
	s.mu.RUnlock()

	query = s.safety.EnsureLimit(query)
	if params == nil {
		params = map[string]interface{}{}
	}

	start := time.Now()
	rows, err := s.executeBolt(ctx, query, params)
	if err == nil {
		monitoring.QueryExecutions.WithLabelValues("bolt", "ok").Inc()
		s.record(query, "bolt", "ok", time.Since(start).Milliseconds(), "")
		return s.capped(rows, "bolt", false, relay.MaxRows), nil
	}
	boltErr := err
	monitoring.QueryExecutions.WithLabelValues("bolt", "error").Inc()
	logger.Log.Warn("Bolt 通道执行失败，尝试 HTTP 备选", zap.Error(boltErr))

	if s.httpEndpoint != "" {
		rows, err = s.executeHTTP(ctx, query, params)
		if err == nil {
			monitoring.QueryExecutions.WithLabelValues("http", "ok").Inc()
			s.record(query, "http", "ok", time.Since(start).Milliseconds(), "")
			return s.capped(rows, "http", false, relay.MaxRows), nil
		}
		monitoring.QueryExecutions.WithLabelValues("http", "error").Inc()
		logger.Log.Warn("HTTP 备选通道执行失败", zap.Error(err))
	}

	if relay.MockFallback {
		monitoring.QueryExecutions.WithLabelValues("mock", "ok").Inc()
		s.record(query, "mock", "degraded", time.Since(start).Milliseconds(), boltErr.Error())
		return s.capped(mockRows(), "mock", true, relay.MaxRows), nil
	}

	s.record(query, "bolt", "error", time.Since(start).Milliseconds(), boltErr.Error())
	return nil, fmt.Errorf("%w: %v", util.ErrExecutionFailed, boltErr)
}

func (s *RelayService) executeBolt(ctx context.Context, query string, params map[string]interface{}) ([]model.Row, error) {
	if s.graph == nil {
		return nil, util.ErrGraphUnavailable
	}
	records, err := s.graph.Read(ctx, query, params)
	if err != nil {
		return nil, err
	}
	rows := make([]model.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, model.NewRow(rec.Keys, rec.Values))
	}
	return rows, nil
}

// executeHTTP 走 Neo4j 事务接口。响应形状交给归一化策略链识别，
// 识别失败按零行处理并计数
func (s *RelayService) executeHTTP(ctx context.Context, query string, params map[string]interface{}) ([]model.Row, error) {
	body, err := json.Marshal(map[string]interface{}{
		"statements": []map[string]interface{}{
			{"statement": query, "parameters": params},
		},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.httpEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http channel status %d: %s", resp.StatusCode, string(raw))
	}

	rows, ok := NormalizeRowsJSON(raw)
	if !ok {
		monitoring.UnrecognizedShapes.Inc()
		logger.Log.Warn("HTTP 通道响应形状无法识别，按零行处理")
		return nil, nil
	}
	return rows, nil
}

func (s *RelayService) capped(rows []model.Row, channel string, degraded bool, maxRows int) *ExecutionResult {
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return &ExecutionResult{
		Rows:     rows,
		RowCount: len(rows),
		Channel:  channel,
		Degraded: degraded,
	}
}

// Health 主通道连通性探测，供前端横幅展示
func (s *RelayService) Health(ctx context.Context) (bool, string) {
	if s.graph == nil {
		return false, "graph driver not configured"
	}
	if err := s.graph.Ping(ctx); err != nil {
		return false, err.Error()
	}
	return true, "bolt channel ok"
}

func (s *RelayService) record(query, channel, status string, elapsedMs int64, errMsg string) {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()
	s.traces[s.traceNext] = ExecutionTrace{
		Query:     query,
		Channel:   channel,
		Status:    status,
		ElapsedMs: elapsedMs,
		Error:     errMsg,
		At:        time.Now(),
	}
	s.traceNext = (s.traceNext + 1) % traceRingSize
	if s.traceCount < traceRingSize {
		s.traceCount++
	}
}

// RecentTraces 按时间倒序返回最近的执行记录
func (s *RelayService) RecentTraces(limit int) []ExecutionTrace {
	s.traceMu.Lock()
	defer s.traceMu.Unlock()
	if limit <= 0 || limit > s.traceCount {
		limit = s.traceCount
	}
	out := make([]ExecutionTrace, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (s.traceNext - 1 - i + traceRingSize*2) % traceRingSize
		out = append(out, s.traces[idx])
	}
	return out
}

// mockRows 降级兜底数据集，与种子数据保持同一批商品
func mockRows() []model.Row {
	columns := []string{"itemId", "name", "category"}
	seed := [][]interface{}{
		{"i-001", "스탠드 조명", "home"},
		{"i-002", "버티컬 마우스", "office"},
		{"i-003", "핸드드립 세트", "kitchen"},
		{"i-004", "러닝화", "sports"},
		{"i-005", "블루투스 스피커", "audio"},
	}
	rows := make([]model.Row, 0, len(seed))
	for _, values := range seed {
		rows = append(rows, model.NewRow(columns, values))
	}
	return rows
}
