package service

import (
	"fmt"
	"regexp"
	"strings"
)

// SafetyVerdict 查询文本的安全裁定
type SafetyVerdict struct {
	Forbidden bool   `json:"forbidden"`
	Reason    string `json:"reason,omitempty"`
}

// 强制层：写入/管理类关键字，词边界匹配，大小写不敏感。
// 命中即整体拒绝，与题目上下文无关
var writePattern = regexp.MustCompile(`(?i)(\b(CREATE|MERGE|DELETE|DETACH|SET|DROP|CALL|APOC|REMOVE|FOREACH)\b|\bLOAD\s+CSV\b)`)

// 建议层的子句词表。多词子句在前，与原始提示文案保持一致
var clauseTokens = []string{
	"OPTIONAL MATCH", "ORDER BY", "LOAD CSV",
	"MATCH", "MERGE", "CREATE", "DELETE", "DETACH", "REMOVE",
	"SET", "CALL", "WITH", "RETURN", "LIMIT", "WHERE", "UNWIND", "COUNT",
}

// 无条件拦截词表，先于 allow-list 检查
var hardForbidden = []string{"LOAD CSV", "CALL DBMS", "APOC."}

var limitPattern = regexp.MustCompile(`(?i)\blimit\b\s+\d+`)
var trailingSemicolon = regexp.MustCompile(`;\s*$`)

type SafetyService struct {
	DefaultLimit int
}

func NewSafetyService(defaultLimit int) *SafetyService {
	return &SafetyService{DefaultLimit: defaultLimit}
}

// Enforce 强制层分类：任何写入/过程调用关键字都会拒绝。
// 这一层是权威边界，编辑器侧的建议层只是体验优化
func (s *SafetyService) Enforce(query string) SafetyVerdict {
	if match := writePattern.FindString(query); match != "" {
		return SafetyVerdict{
			Forbidden: true,
			Reason:    fmt.Sprintf("write/procedure queries are not allowed: %s", strings.ToUpper(match)),
		}
	}
	return SafetyVerdict{}
}

// Advise 建议层分类：对照题目 allow-list 报告具体越界的子句，
// 用于生成针对性反馈。不做完整解析，只做子串匹配
func (s *SafetyService) Advise(query string, allowedOps []string) SafetyVerdict {
	upper := strings.ToUpper(query)

	for _, op := range hardForbidden {
		if strings.Contains(upper, op) {
			return SafetyVerdict{
				Forbidden: true,
				Reason:    "보안상 차단된 연산이 포함되어 있습니다 (LOAD CSV / dbms / apoc).",
			}
		}
	}

	allowed := make(map[string]bool, len(allowedOps))
	for _, op := range allowedOps {
		allowed[strings.ToUpper(op)] = true
	}

	var disallowed []string
	for _, token := range clauseTokens {
		if strings.Contains(upper, token) && !allowed[token] {
			disallowed = append(disallowed, token)
		}
	}
	if len(disallowed) > 0 {
		return SafetyVerdict{
			Forbidden: true,
			Reason:    fmt.Sprintf("%s는 이 퀘스트에서 허용되지 않습니다.", strings.Join(disallowed, ", ")),
		}
	}
	return SafetyVerdict{}
}

// EnsureLimit 给缺少 LIMIT 的查询附加默认上限，约束响应规模。
// 已带 LIMIT 的查询原样保留（去掉行尾分号）
func (s *SafetyService) EnsureLimit(query string) string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ""
	}
	trimmed = trailingSemicolon.ReplaceAllString(trimmed, "")
	if limitPattern.MatchString(trimmed) {
		return trimmed
	}
	limit := s.DefaultLimit
	if limit <= 0 {
		limit = 50
	}
	return fmt.Sprintf("%s LIMIT %d", trimmed, limit)
}
