package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"cypher_quest_backend/internal/model"
	"cypher_quest_backend/internal/repository"
	"cypher_quest_backend/pkg/logger"
)

// GraphWriter seed/reset/import 专用的写通道。
// 学习者查询永远走不到这里，写语句全部固定在本文件内
type GraphWriter interface {
	Write(ctx context.Context, cypher string, params map[string]interface{}) error
}

const maxImportRows = 5000

const (
	cypherResetAll   = "MATCH (n) DETACH DELETE n"
	cypherMergeUsers = "UNWIND $rows AS r MERGE (u:User {userId: r.userId}) SET u.name = r.name"
	cypherMergeItems = "UNWIND $rows AS r MERGE (i:Item {itemId: r.itemId}) SET i.name = r.name, i.category = r.category, i.price = r.price"
)

// 关系类型不能参数化，按行为拆成三条固定语句
var cypherMergeEvents = map[string]string{
	"VIEW": "UNWIND $rows AS r MATCH (u:User {userId: r.userId}) MATCH (i:Item {itemId: r.itemId}) MERGE (u)-[:VIEW]->(i)",
	"CART": "UNWIND $rows AS r MATCH (u:User {userId: r.userId}) MATCH (i:Item {itemId: r.itemId}) MERGE (u)-[:CART]->(i)",
	"BUY":  "UNWIND $rows AS r MATCH (u:User {userId: r.userId}) MATCH (i:Item {itemId: r.itemId}) MERGE (u)-[:BUY]->(i)",
}

// ImportPayload JSON 导入格式。CSV 导入只接受 events 三列
type ImportPayload struct {
	Users  []ImportUser  `json:"users"`
	Items  []ImportItem  `json:"items"`
	Events []ImportEvent `json:"events"`
}

type ImportUser struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type ImportItem struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}

type ImportEvent struct {
	UserID string `json:"userId"`
	ItemID string `json:"itemId"`
	Action string `json:"action"` // VIEW / CART / BUY
}

// ImportSummary 导入结果统计
type ImportSummary struct {
	Users      int    `json:"users"`
	Items      int    `json:"items"`
	Events     int    `json:"events"`
	ArchiveURL string `json:"archiveUrl,omitempty"`
}

// ImportService 练习图谱的数据自举：种子、清空、批量导入。
// 原始导入载荷归档到对象存储，便于排查脏数据
type ImportService struct {
	graph   GraphWriter
	storage *StorageService
	archive *repository.ArchiveRepository
}

func NewImportService(graph GraphWriter, storage *StorageService, archive *repository.ArchiveRepository) *ImportService {
	return &ImportService{graph: graph, storage: storage, archive: archive}
}

// Reset 清空整个练习图谱
func (s *ImportService) Reset(ctx context.Context) error {
	if err := s.graph.Write(ctx, cypherResetAll, nil); err != nil {
		return fmt.Errorf("reset graph: %w", err)
	}
	logger.Log.Info("练习图谱已清空")
	return nil
}

// Seed 写入标准种子数据集。题库的期望答案与这份数据一一对应，
// 改动时必须同步过一遍题目
func (s *ImportService) Seed(ctx context.Context) (*ImportSummary, error) {
	payload := SeedPayload()
	summary, err := s.apply(ctx, payload)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("种子数据写入完成",
		zap.Int("users", summary.Users), zap.Int("items", summary.Items), zap.Int("events", summary.Events))
	return summary, nil
}

// ImportJSON 导入 JSON 载荷并归档原始内容
func (s *ImportService) ImportJSON(ctx context.Context, userID uint, raw []byte) (*ImportSummary, error) {
	var payload ImportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse import payload: %w", err)
	}
	if err := validatePayload(&payload); err != nil {
		return nil, err
	}
	summary, err := s.apply(ctx, &payload)
	if err != nil {
		return nil, err
	}
	s.archiveRaw(ctx, userID, raw, "application/json", summary)
	return summary, nil
}

// ImportCSV 导入行为事件 CSV，三列：userId,itemId,action
func (s *ImportService) ImportCSV(ctx context.Context, userID uint, reader io.Reader) (*ImportSummary, error) {
	var buf strings.Builder
	r := csv.NewReader(io.TeeReader(io.LimitReader(reader, 8<<20), &buf))
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	payload := &ImportPayload{}
	for i, rec := range records {
		if i == 0 && strings.EqualFold(rec[0], "userId") {
			continue // 表头
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("csv line %d: expected 3 columns, got %d", i+1, len(rec))
		}
		payload.Events = append(payload.Events, ImportEvent{
			UserID: rec[0],
			ItemID: rec[1],
			Action: strings.ToUpper(strings.TrimSpace(rec[2])),
		})
	}
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	summary, err := s.apply(ctx, payload)
	if err != nil {
		return nil, err
	}
	s.archiveRaw(ctx, userID, []byte(buf.String()), "text/csv", summary)
	return summary, nil
}

func validatePayload(payload *ImportPayload) error {
	total := len(payload.Users) + len(payload.Items) + len(payload.Events)
	if total == 0 {
		return fmt.Errorf("import payload is empty")
	}
	if total > maxImportRows {
		return fmt.Errorf("import payload exceeds %d rows", maxImportRows)
	}
	for i, e := range payload.Events {
		if _, ok := cypherMergeEvents[strings.ToUpper(e.Action)]; !ok {
			return fmt.Errorf("event %d: unknown action %q", i, e.Action)
		}
	}
	return nil
}

func (s *ImportService) apply(ctx context.Context, payload *ImportPayload) (*ImportSummary, error) {
	if len(payload.Users) > 0 {
		rows := make([]map[string]interface{}, len(payload.Users))
		for i, u := range payload.Users {
			rows[i] = map[string]interface{}{"userId": u.UserID, "name": u.Name}
		}
		if err := s.graph.Write(ctx, cypherMergeUsers, map[string]interface{}{"rows": rows}); err != nil {
			return nil, fmt.Errorf("merge users: %w", err)
		}
	}
	if len(payload.Items) > 0 {
		rows := make([]map[string]interface{}, len(payload.Items))
		for i, item := range payload.Items {
			rows[i] = map[string]interface{}{
				"itemId": item.ItemID, "name": item.Name,
				"category": item.Category, "price": item.Price,
			}
		}
		if err := s.graph.Write(ctx, cypherMergeItems, map[string]interface{}{"rows": rows}); err != nil {
			return nil, fmt.Errorf("merge items: %w", err)
		}
	}
	for action, cypher := range cypherMergeEvents {
		var rows []map[string]interface{}
		for _, e := range payload.Events {
			if strings.ToUpper(e.Action) == action {
				rows = append(rows, map[string]interface{}{"userId": e.UserID, "itemId": e.ItemID})
			}
		}
		if len(rows) == 0 {
			continue
		}
		if err := s.graph.Write(ctx, cypher, map[string]interface{}{"rows": rows}); err != nil {
			return nil, fmt.Errorf("merge %s events: %w", strings.ToLower(action), err)
		}
	}
	return &ImportSummary{
		Users:  len(payload.Users),
		Items:  len(payload.Items),
		Events: len(payload.Events),
	}, nil
}

// archiveRaw 归档失败不阻塞导入，只记日志
func (s *ImportService) archiveRaw(ctx context.Context, userID uint, raw []byte, contentType string, summary *ImportSummary) {
	if s.storage == nil {
		return
	}
	ext := "json"
	if contentType == "text/csv" {
		ext = "csv"
	}
	objectKey := fmt.Sprintf("imports/%s/%s.%s", time.Now().Format("2006-01-02"), model.GenerateUUID(), ext)
	url, err := s.storage.Put(ctx, objectKey, raw, contentType)
	if err != nil {
		logger.Log.Warn("导入载荷归档失败", zap.Error(err))
		return
	}
	summary.ArchiveURL = url
	if s.archive != nil {
		record := &model.ImportArchive{
			UserID:    userID,
			ObjectKey: objectKey,
			Users:     summary.Users,
			Items:     summary.Items,
			Events:    summary.Events,
		}
		if err := s.archive.Create(record); err != nil {
			logger.Log.Warn("归档记录写库失败", zap.Error(err))
		}
	}
}

// SeedPayload 标准种子数据集
func SeedPayload() *ImportPayload {
	return &ImportPayload{
		Users: []ImportUser{
			{UserID: "u-01", Name: "하늘"},
			{UserID: "u-02", Name: "민준"},
			{UserID: "u-03", Name: "소연"},
		},
		Items: []ImportItem{
			{ItemID: "i-001", Name: "스탠드 조명", Category: "home", Price: 65000},
			{ItemID: "i-002", Name: "버티컬 마우스", Category: "office", Price: 38000},
			{ItemID: "i-003", Name: "핸드드립 세트", Category: "kitchen", Price: 29000},
			{ItemID: "i-004", Name: "러닝화", Category: "sports", Price: 89000},
			{ItemID: "i-005", Name: "블루투스 스피커", Category: "audio", Price: 45000},
		},
		Events: []ImportEvent{
			{UserID: "u-01", ItemID: "i-001", Action: "VIEW"},
			{UserID: "u-02", ItemID: "i-001", Action: "VIEW"},
			{UserID: "u-03", ItemID: "i-001", Action: "VIEW"},
			{UserID: "u-02", ItemID: "i-002", Action: "VIEW"},
			{UserID: "u-03", ItemID: "i-004", Action: "VIEW"},
			{UserID: "u-01", ItemID: "i-003", Action: "CART"},
			{UserID: "u-03", ItemID: "i-005", Action: "CART"},
			{UserID: "u-01", ItemID: "i-002", Action: "BUY"},
			{UserID: "u-02", ItemID: "i-004", Action: "BUY"},
		},
	}
}
