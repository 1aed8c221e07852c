package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60
	}
	if cfg.Catalog.DataDir == "" {
		cfg.Catalog.DataDir = "./data/documents"
	}
	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = "data_fixed_formatted.json"
	}
	if cfg.Catalog.BatchSize == 0 {
		cfg.Catalog.BatchSize = 100
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-ada-002"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 20
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 5
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Vector.Qdrant.Address == "" {
		cfg.Vector.Qdrant.Address = "localhost:6334"
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "restaurant_collection"
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "openai"
	}
	if cfg.Generation.Model == "" {
		switch cfg.Generation.Provider {
		case "anthropic":
			cfg.Generation.Model = "claude-3-5-sonnet-20241022"
		default:
			cfg.Generation.Model = "gpt-4-turbo-preview"
		}
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1024
	}
	if cfg.Retrieval.RestaurantTopK == 0 {
		cfg.Retrieval.RestaurantTopK = 3
	}
	if cfg.Retrieval.MenuItemTopK == 0 {
		cfg.Retrieval.MenuItemTopK = 5
	}
	if cfg.Retrieval.OverFetchFactor == 0 {
		cfg.Retrieval.OverFetchFactor = 3
	}
}
