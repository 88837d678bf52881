package config

import "time"

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	RedisConfig       RedisStorageConfig
	HttpPort          int
	StorageType       StorageType
	CompletionConfig  CompletionConfig
	MaxAutoChainDepth int
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}

type CompletionConfig struct {
	Endpoint string
	ApiKey   string
	Model    string
	Timeout  time.Duration
}
