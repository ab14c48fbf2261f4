package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig `yaml:"database"`
	Redis     RedisConfig    `yaml:"redis"`
	Kafka     KafkaConfig    `yaml:"kafka"`
	Routing   RoutingConfig  `yaml:"routing"`
	CaseTrack SiblingConfig  `yaml:"case_track"`
	Identity  SiblingConfig  `yaml:"identity"`
	Dispatch  DispatchConfig `yaml:"dispatch"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type KafkaConfig struct {
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	ProviderLocationTopicName string `yaml:"provider_location_topic_name"`
	DispatchSearchedTopicName string `yaml:"dispatch_searched_topic_name"`
	SLACheckpointTopicName    string `yaml:"sla_checkpoint_topic_name"`
}

type RoutingConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"` // "osrm" | "fake"
	Profile string `yaml:"profile"`

	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	HotCacheTTLSeconds int `yaml:"hot_cache_ttl_seconds"`
}

type SiblingConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type DispatchConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	DefaultLimit    int     `yaml:"default_limit"`
	DefaultRadiusKM float64 `yaml:"default_radius_km"`

	EnrichConcurrency int `yaml:"enrich_concurrency"`

	// Disabled-by-default fallback to the last technician who attended a
	// company patrol vehicle when the provider roster is empty.
	EnablePatrolFallback bool `yaml:"enable_patrol_fallback"`

	WorkerHTTPAddr            string `yaml:"worker_http_addr"`
	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int    `yaml:"worker_batch_size"`
	WorkerConcurrency         int    `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int    `yaml:"worker_lease_seconds"`

	WorkerRecheckOpenSeconds       int `yaml:"worker_recheck_open_seconds"`
	WorkerRecheckInProgressSeconds int `yaml:"worker_recheck_in_progress_seconds"`
	WorkerBackoffSeconds           int `yaml:"worker_backoff_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
