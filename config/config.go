package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// 服务器配置
	Port        string
	Environment string

	// 数据库配置
	DatabaseURL string
	// 为 true 时使用内存存储,本地开发/演示用,不落库
	UseMemoryStore bool

	// 消息代理配置 (跨实例广播)。为空时使用进程内 broker,
	// 单实例部署够用;多实例部署必须配置 AMQP。
	BrokerURL string

	// 题库服务配置
	QuestionBankURL   string
	QuestionBankToken string

	// 比赛配置
	DefaultQuestionCount int
	MaxQuestionCount     int
}

func Load() *Config {
	return &Config{
		// 服务器配置
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// 数据库配置
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/versus?sslmode=disable"),
		UseMemoryStore: getEnv("USE_MEMORY_STORE", "false") == "true",

		// 消息代理配置
		BrokerURL: getEnv("BROKER_URL", ""),

		// 题库服务配置
		QuestionBankURL:   getEnv("QUESTION_BANK_URL", ""),
		QuestionBankToken: getEnv("QUESTION_BANK_TOKEN", ""),

		// 比赛配置
		DefaultQuestionCount: getEnvInt("DEFAULT_QUESTION_COUNT", 5),
		MaxQuestionCount:     getEnvInt("MAX_QUESTION_COUNT", 20),
	}
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil || result <= 0 {
		return defaultValue
	}
	return result
}
