// 手动向练习图谱写入种子数据的脚本
//
// 该功能已集成到主应用的管理接口（POST /api/admin/seed）。
// 此脚本仅用于手动触发，例如首次部署或本地联调时服务还没起来。
//
// 用法: go run scripts/seed_graph.go [-reset]

package main

import (
	"context"
	"flag"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"cypher_quest_backend/internal/config"
	"cypher_quest_backend/internal/service"
	"cypher_quest_backend/pkg/graphdb"
	"cypher_quest_backend/pkg/logger"
)

func main() {
	reset := flag.Bool("reset", false, "写入前先清空整个图谱")
	flag.Parse()

	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}
	logger.InitLogger(&cfg)

	graph, err := graphdb.InitGraph(&cfg.Neo4j)
	if err != nil {
		log.Fatalf("连接 Neo4j 失败: %v", err)
	}
	ctx := context.Background()
	defer graph.Close(ctx)

	imports := service.NewImportService(graph, nil, nil)
	if *reset {
		if err := imports.Reset(ctx); err != nil {
			log.Fatalf("清空图谱失败: %v", err)
		}
		log.Println("图谱已清空")
	}

	summary, err := imports.Seed(ctx)
	if err != nil {
		log.Fatalf("种子数据写入失败: %v", err)
	}
	log.Printf("种子数据写入完成: users=%d items=%d events=%d",
		summary.Users, summary.Items, summary.Events)
}
