package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Telegram: TelegramConfig{},
		Generation: GenerationConfig{
			DefaultModel:   "gemini-2.0-flash-exp",
			TimeoutSeconds: 120,
		},
		Aggregation: AggregationConfig{
			TextWindowSeconds:  3,
			AlbumWindowSeconds: 10,
			MaxBurstEvents:     32,
		},
		Delivery: DeliveryConfig{
			MaxPayload:        4096,
			Retries:           3,
			RetryDelaySeconds: 2,
		},
		History: HistoryConfig{
			DBPath: "~/.gembot/history.db",
		},
		Attachments: AttachmentsConfig{
			Dir: "~/.gembot/photos",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "127.0.0.1:9090",
		},
	}
}
