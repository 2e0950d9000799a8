package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"versus-service/config"
	"versus-service/database"
	"versus-service/models"
	"versus-service/services"
	"versus-service/web"
)

func main() {
	log.Println("Starting Versus Match Service...")

	// 加载 .env (不存在就用环境变量)
	_ = godotenv.Load()

	// 加载配置
	cfg := config.Load()

	// 选择比赛记录存储
	var store services.RecordStore
	if cfg.UseMemoryStore {
		log.Println("⚠️  Using in-memory record store (development only, nothing is persisted)")
		store = services.NewMemoryRecordStore()
	} else {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := database.Migrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		log.Println("Database connected and migrated")

		store = database.NewMatchStore(db)
	}

	// 选择事件代理: 单实例用进程内实现,多实例配置 AMQP
	var broker services.EventBroker
	if cfg.BrokerURL != "" {
		amqpBroker, err := services.NewAMQPBroker(cfg.BrokerURL)
		if err != nil {
			log.Fatalf("Failed to connect to AMQP broker: %v", err)
		}
		broker = amqpBroker
		log.Println("AMQP broker connected")
	} else {
		broker = services.NewInMemoryBroker()
		log.Println("Using in-memory broker (single instance)")
	}
	defer broker.Close()

	// 题库服务客户端
	var questions services.QuestionProvider
	if cfg.QuestionBankURL != "" {
		questions = services.NewQuestionBankClient(cfg.QuestionBankURL, cfg.QuestionBankToken)
	} else {
		log.Println("⚠️  QUESTION_BANK_URL not set, using built-in sample questions")
		questions = &services.StaticQuestionProvider{Questions: sampleQuestions()}
	}

	// 创建比赛服务
	matchService := services.NewMatchService(store, broker, questions,
		cfg.DefaultQuestionCount, cfg.MaxQuestionCount)

	// 启动 WebSocket Hub
	hub := web.NewHub(broker)
	if err := hub.Start(); err != nil {
		log.Fatalf("Failed to start hub: %v", err)
	}

	// 启动Web服务器
	server := web.NewServer(cfg, matchService, hub)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Web server error: %v", err)
		}
	}()

	log.Printf("Web server started on port %s", cfg.Port)
	log.Println("Service is running. Press Ctrl+C to stop.")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down service...")

	server.Stop()
	hub.Stop()

	log.Println("Service stopped")
}

// sampleQuestions 内置示例题目,本地开发时代替题库服务
func sampleQuestions() []models.Question {
	return []models.Question{
		{
			Prompt:       "Which HTTP status code means Conflict?",
			Options:      []string{"404", "409", "422", "500"},
			CorrectIndex: 1,
			Topic:        "web",
		},
		{
			Prompt:       "Which isolation primitive serializes updates to a single Postgres row?",
			Options:      []string{"Advisory lock", "Table lock", "SELECT ... FOR UPDATE", "VACUUM"},
			CorrectIndex: 2,
			Topic:        "databases",
		},
		{
			Prompt:       "In AMQP, which exchange type delivers each message to every bound queue?",
			Options:      []string{"direct", "topic", "headers", "fanout"},
			CorrectIndex: 3,
			Topic:        "messaging",
		},
		{
			Prompt:       "What does the 'A' in CAP theorem stand for?",
			Options:      []string{"Atomicity", "Availability", "Authority", "Affinity"},
			CorrectIndex: 1,
			Topic:        "distributed-systems",
		},
		{
			Prompt:       "Which Go type is safe for concurrent use without extra locking?",
			Options:      []string{"map", "slice", "sync.Map", "bytes.Buffer"},
			CorrectIndex: 2,
			Topic:        "go",
		},
	}
}
