package config

import (
	"ridestore/internal/utils"
)

type EventsConfig struct {
	// Publisher is none, redis or rabbitmq.
	Publisher string `yaml:"publisher"`
	Channel   string `yaml:"channel"`
	Exchange  string `yaml:"exchange"`
	// RecentLimit caps the Redis list of recent commit events.
	RecentLimit int64 `yaml:"recent_limit"`
}

func loadEventsConfig() *EventsConfig {
	return &EventsConfig{
		Publisher:   getEnv("EVENTS_PUBLISHER", utils.PublisherNone),
		Channel:     getEnv("EVENTS_REDIS_CHANNEL", utils.DefaultEventChannel),
		Exchange:    getEnv("EVENTS_RABBITMQ_EXCHANGE", utils.DefaultEventExchange),
		RecentLimit: int64(getEnvAsInt("EVENTS_REDIS_RECENT_LIMIT", utils.DefaultRecentEvents)),
	}
}
