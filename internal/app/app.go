package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cypher_quest_backend/internal/config"
	"cypher_quest_backend/internal/controller"
	"cypher_quest_backend/internal/repository"
	"cypher_quest_backend/internal/service"
	"cypher_quest_backend/pkg/database"
	"cypher_quest_backend/pkg/graphdb"
	"cypher_quest_backend/pkg/logger"
	"cypher_quest_backend/pkg/monitoring"
	"cypher_quest_backend/pkg/security"
	"cypher_quest_backend/pkg/tracing"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Graph           *graphdb.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user     *repository.UserRepository
	snapshot *repository.SnapshotRepository
	attempt  *repository.AttemptRepository
	archive  *repository.ArchiveRepository
}

type services struct {
	auth     *service.AuthService
	storage  *service.StorageService
	safety   *service.SafetyService
	grading  *service.GradingService
	question *service.QuestionService
	progress *service.ProgressService
	relay    *service.RelayService
	session  *service.SessionService
	imports  *service.ImportService
}

type controllers struct {
	auth     *controller.AuthController
	question *controller.QuestionController
	relay    *controller.RelayController
	progress *controller.ProgressController
	session  *controller.SessionController
	imports  *controller.ImportController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 配置热更新入口：替换可安全热替换的调参项并广播回调
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Config = cfg
	if a.services != nil {
		a.services.progress.SetScoring(cfg.Scoring)
		a.services.relay.SetRelay(cfg.Relay)
		a.services.safety.DefaultLimit = cfg.Relay.DefaultLimit
	}
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
	logger.Log.Info("配置热更新已生效")
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		snapshot: repository.NewSnapshotRepository(rdb),
		attempt:  repository.NewAttemptRepository(db),
		archive:  repository.NewArchiveRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, graph *graphdb.Client) (*services, error) {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg.JWT)
	s.safety = service.NewSafetyService(cfg.Relay.DefaultLimit)
	s.grading = service.NewGradingService()

	question, err := service.NewQuestionService()
	if err != nil {
		return nil, err
	}
	s.question = question

	s.progress = service.NewProgressService(repos.snapshot, repos.attempt, cfg.Scoring)
	s.relay = service.NewRelayService(graph, s.safety, cfg)
	s.session = service.NewSessionService(s.question, s.grading, s.relay, s.progress, s.safety)
	s.imports = service.NewImportService(graph, s.storage, repos.archive)
	return s, nil
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:     controller.NewAuthController(s.auth),
		question: controller.NewQuestionController(s.question),
		relay:    controller.NewRelayController(s.relay, s.question, s.grading),
		progress: controller.NewProgressController(s.progress, s.question, repos.attempt),
		session:  controller.NewSessionController(s.session),
		imports:  controller.NewImportController(s.imports, repos.archive),
		health:   controller.NewHealthController(db, rdb, s.relay),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 6000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	// 图数据库连不上不阻塞启动，中继会走降级通道
	graph, err := graphdb.InitGraph(&cfg.Neo4j)
	if err != nil {
		logger.Log.Warn("Neo4j unavailable at startup, relay will degrade", zap.Error(err))
		graph = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Graph:  graph,
	}

	repos := app.initRepositories(db, rdb)
	services, err := app.initServices(repos, cfg, graph)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = services
	controllers := app.initControllers(services, repos, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("cypher-quest", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" && cfg.Storage.LocalPath != "" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, os.ModePerm)
		}
		router.Static("/archives", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	if a.Graph != nil {
		if err := a.Graph.Close(ctx); err != nil {
			logger.Log.Error("Failed to close graph driver", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
