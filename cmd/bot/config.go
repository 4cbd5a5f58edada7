package main

import "time"

type Config struct {
	LogLevel          string   `env:"LOG_LEVEL,default=INFO"`
	LedgerFilepath    string   `env:"LEDGER_FILEPATH,default=./data/capital_data.json"`
	OpLogDir          string   `env:"OPLOG_DIR,default=./logs"`
	BadgerFilepath    string   `env:"BADGER_FILEPATH,default=./data/audit"`
	AdminIDs          []string `env:"ADMIN_IDS,required=true" validate:"required,min=1"`
	MaxHistoryRecords int      `env:"MAX_HISTORY_RECORDS,default=1000" validate:"gt=0"`
	BufferSize        int      `env:"BUFFER_SIZE,default=256" validate:"gt=0"`

	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=5s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`

	QueueCapacity int           `env:"QUEUE_CAPACITY,default=100" validate:"gt=0"`
	QueueTTL      time.Duration `env:"QUEUE_TTL,default=30s"`
	SendDelay     time.Duration `env:"SEND_DELAY,default=100ms"`
	MaxRetries    int           `env:"MAX_RETRIES,default=3" validate:"gt=0"`
	RetryBackoff  time.Duration `env:"RETRY_BACKOFF,default=1s"`

	ConnectTimeout       time.Duration `env:"CONNECT_TIMEOUT,default=60s"`
	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY,default=5s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS,default=5" validate:"gt=0"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL,required=true" validate:"required"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID,default=capital-bot"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX,default=capital"`
}
