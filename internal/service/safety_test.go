package service

import (
	"strings"
	"testing"
)

func TestEnforceBlocksWriteKeywords(t *testing.T) {
	s := NewSafetyService(50)
	blocked := []string{
		"CREATE (n:Item {itemId:'x'})",
		"match (n) detach delete n",
		"MERGE (u:User {userId:'u-99'})",
		"MATCH (n) SET n.price = 0",
		"DROP CONSTRAINT item_id",
		"CALL db.labels()",
		"CALL apoc.export.csv.all('out.csv', {})",
		"MATCH (n) REMOVE n.price RETURN n",
		"FOREACH (x IN [1] | CREATE (:T))",
		"LOAD CSV FROM 'file:///x.csv' AS row RETURN row",
		"load\n  csv FROM 'x' AS row RETURN row",
	}
	for _, query := range blocked {
		verdict := s.Enforce(query)
		if !verdict.Forbidden {
			t.Fatalf("query %q should be blocked", query)
		}
		if verdict.Reason == "" {
			t.Fatalf("blocked query %q should name the offending keyword", query)
		}
	}
}

func TestEnforceAllowsReadQueries(t *testing.T) {
	s := NewSafetyService(50)
	allowed := []string{
		"MATCH (i:Item) RETURN i.itemId",
		"MATCH (u:User)-[:BUY]->(i:Item) RETURN i.name ORDER BY i.name",
		// 词边界：created / settings 不含独立的写入关键字
		"MATCH (i:Item) WHERE i.createdBy = 'x' RETURN i.settings",
		"MATCH (n) RETURN count(*) LIMIT 10",
	}
	for _, query := range allowed {
		if verdict := s.Enforce(query); verdict.Forbidden {
			t.Fatalf("query %q should pass: %s", query, verdict.Reason)
		}
	}
}

func TestAdviseHardBlockedVocabulary(t *testing.T) {
	s := NewSafetyService(50)
	// 即使 allow-list 放行，该词表也要先短路
	queries := []string{
		"LOAD CSV FROM 'x' AS row RETURN row",
		"CALL dbms.components()",
		"CALL apoc.help('text')",
	}
	for _, query := range queries {
		verdict := s.Advise(query, []string{"LOAD CSV", "CALL", "RETURN", "MATCH"})
		if !verdict.Forbidden {
			t.Fatalf("query %q should be hard blocked", query)
		}
		if !strings.Contains(verdict.Reason, "보안") {
			t.Fatalf("hard block should use the security message, got %q", verdict.Reason)
		}
	}
}

func TestAdviseReportsDisallowedClauses(t *testing.T) {
	s := NewSafetyService(50)
	verdict := s.Advise("MATCH (n) DELETE n RETURN n", []string{"MATCH", "RETURN"})
	if !verdict.Forbidden {
		t.Fatalf("DELETE should be flagged")
	}
	if !strings.Contains(verdict.Reason, "DELETE") {
		t.Fatalf("reason should name the clause, got %q", verdict.Reason)
	}

	verdict = s.Advise("MATCH (n) RETURN n LIMIT 5", []string{"MATCH", "RETURN", "LIMIT"})
	if verdict.Forbidden {
		t.Fatalf("allowed clauses should pass, got %q", verdict.Reason)
	}
}

func TestEnsureLimit(t *testing.T) {
	s := NewSafetyService(50)
	tests := []struct {
		in   string
		want string
	}{
		{"MATCH (n) RETURN n", "MATCH (n) RETURN n LIMIT 50"},
		{"MATCH (n) RETURN n LIMIT 10", "MATCH (n) RETURN n LIMIT 10"},
		{"MATCH (n) RETURN n limit 3", "MATCH (n) RETURN n limit 3"},
		{"MATCH (n) RETURN n;", "MATCH (n) RETURN n LIMIT 50"},
		{"  MATCH (n) RETURN n  ", "MATCH (n) RETURN n LIMIT 50"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := s.EnsureLimit(tt.in); got != tt.want {
			t.Fatalf("EnsureLimit(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnsureLimitUsesConfiguredDefault(t *testing.T) {
	s := NewSafetyService(7)
	if got := s.EnsureLimit("MATCH (n) RETURN n"); got != "MATCH (n) RETURN n LIMIT 7" {
		t.Fatalf("unexpected rewrite: %q", got)
	}
}
