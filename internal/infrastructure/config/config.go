package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
// 默认值 < config.yaml < 环境变量，逐层覆盖
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	Provider  ProviderConfig  `yaml:"provider"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Chat      ChatConfig      `yaml:"chat"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort      string `yaml:"http_port"`      // 例如 ":8000"
	AdvertiseMDNS bool   `yaml:"advertise_mdns"` // 是否通过 mDNS 广播本机服务
}

// DataConfig 数据目录配置
type DataConfig struct {
	Root   string `yaml:"root"`    // 数据根目录
	DBPath string `yaml:"db_path"` // 为空时取 Root/app.db
}

// ProviderConfig LLM 提供方配置（OpenAI 兼容端点）
type ProviderConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	DefaultModelID string `yaml:"default_model_id"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"` // 为空时沿用 Provider.BaseURL
	ModelID string `yaml:"model_id"`
}

// IngestConfig 上下文摄入配置
type IngestConfig struct {
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	MaxURLBytes    int64         `yaml:"max_url_bytes"`
	URLTimeout     time.Duration `yaml:"url_timeout"`
	MaxRedirects   int           `yaml:"max_redirects"`
}

// ChatConfig 聊天编排配置
type ChatConfig struct {
	MaxToolRounds      int           `yaml:"max_tool_rounds"`
	MaxTotalToolCalls  int           `yaml:"max_total_tool_calls"`
	ToolCallTimeout    time.Duration `yaml:"tool_call_timeout"`
	TurnTimeout        time.Duration `yaml:"turn_timeout"`
	HistoryTokenBudget int           `yaml:"history_token_budget"`
	EventQueueSize     int           `yaml:"event_queue_size"`
	RetrieveTopK       int           `yaml:"retrieve_top_k"`
}

// ToolsConfig 工具配置
type ToolsConfig struct {
	RepoRoot string `yaml:"repo_root"` // list_directory 的根目录约束
}

// NewConfig 创建配置（默认值）
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:      ":8000",
			AdvertiseMDNS: false,
		},
		Data: DataConfig{
			Root: "./data",
		},
		Provider: ProviderConfig{
			BaseURL:        "http://localhost:11434/v1",
			APIKey:         "sk-no-key",
			DefaultModelID: "gpt-oss:20b",
		},
		Embedding: EmbeddingConfig{
			ModelID: "all-MiniLM-L6-v2",
		},
		Ingest: IngestConfig{
			MaxUploadBytes: 10 << 20,
			MaxURLBytes:    2 << 20,
			URLTimeout:     10 * time.Second,
			MaxRedirects:   3,
		},
		Chat: ChatConfig{
			MaxToolRounds:      4,
			MaxTotalToolCalls:  15,
			ToolCallTimeout:    30 * time.Second,
			TurnTimeout:        10 * time.Minute,
			HistoryTokenBudget: 8192,
			EventQueueSize:     256,
			RetrieveTopK:       5,
		},
		Tools: ToolsConfig{},
	}
}

// Load 加载配置：默认值 + 可选 config.yaml + 环境变量，最后校验
func Load() (*Config, error) {
	cfg := NewConfig()

	if path := lookupConfigFile(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lookupConfigFile 查找配置文件：HACKHERO_CONFIG 优先，其次工作目录
func lookupConfigFile() string {
	if p := os.Getenv("HACKHERO_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

// applyEnv 按规范枚举的环境变量覆盖
func (c *Config) applyEnv() {
	setStr(&c.Data.Root, "DATA_ROOT")
	setStr(&c.Data.DBPath, "DB_PATH")
	setStr(&c.Provider.BaseURL, "PROVIDER_BASE_URL")
	setStr(&c.Provider.APIKey, "PROVIDER_API_KEY")
	setStr(&c.Provider.DefaultModelID, "DEFAULT_MODEL_ID")
	setStr(&c.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setStr(&c.Embedding.ModelID, "EMBEDDING_MODEL_ID")
	setInt64(&c.Ingest.MaxUploadBytes, "MAX_UPLOAD_BYTES")
	setInt64(&c.Ingest.MaxURLBytes, "MAX_URL_BYTES")
	setSeconds(&c.Ingest.URLTimeout, "URL_TIMEOUT_SECONDS")
	setInt(&c.Ingest.MaxRedirects, "MAX_REDIRECTS")
	setInt(&c.Chat.MaxToolRounds, "MAX_TOOL_ROUNDS")
	setInt(&c.Chat.MaxTotalToolCalls, "MAX_TOTAL_TOOL_CALLS")
	setSeconds(&c.Chat.ToolCallTimeout, "TOOL_CALL_TIMEOUT_SECONDS")
	setStr(&c.Tools.RepoRoot, "REPO_ROOT")
	setStr(&c.Server.HTTPPort, "HTTP_PORT")
}

// Validate 校验配置，失败为启动期错误（退出码 2）
func (c *Config) Validate() error {
	if c.Data.Root == "" {
		return fmt.Errorf("data root must not be empty")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base url must not be empty")
	}
	if c.Ingest.MaxRedirects < 0 {
		return fmt.Errorf("max redirects must be >= 0, got %d", c.Ingest.MaxRedirects)
	}
	if c.Chat.MaxToolRounds < 1 {
		return fmt.Errorf("max tool rounds must be >= 1, got %d", c.Chat.MaxToolRounds)
	}
	if c.Chat.EventQueueSize < 1 {
		return fmt.Errorf("event queue size must be >= 1, got %d", c.Chat.EventQueueSize)
	}
	if c.Tools.RepoRoot != "" && !filepath.IsAbs(c.Tools.RepoRoot) {
		return fmt.Errorf("repo root must be an absolute path: %s", c.Tools.RepoRoot)
	}
	return nil
}

// DBPath 数据库文件路径
func (c *Config) DBPath() string {
	if c.Data.DBPath != "" {
		return c.Data.DBPath
	}
	return filepath.Join(c.Data.Root, "app.db")
}

// RAGCacheDir 检索缓存目录
func (c *Config) RAGCacheDir() string {
	return filepath.Join(c.Data.Root, "rag_cache")
}

// MigrationsDir 可覆盖迁移目录（存在时替代内嵌迁移）
func (c *Config) MigrationsDir() string {
	return filepath.Join(c.Data.Root, "migrations")
}

// SeedRulesPath 种子规则文件路径
func (c *Config) SeedRulesPath() string {
	return filepath.Join(c.Data.Root, "rules.txt")
}

// EmbeddingBaseURL 向量化端点，未配置时沿用 provider
func (c *Config) EmbeddingBaseURL() string {
	if c.Embedding.BaseURL != "" {
		return c.Embedding.BaseURL
	}
	return c.Provider.BaseURL
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}
