package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/documents.db"
	}
	if cfg.Storage.UploadPath == "" {
		cfg.Storage.UploadPath = "/usr/local/var/kotae/data/uploads"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/kotae/data/indexes"
	}
	if cfg.Upload.AllowedExtensions == nil {
		cfg.Upload.AllowedExtensions = []string{".pdf"}
	}
	if cfg.Upload.MaxUploadBytes == 0 {
		cfg.Upload.MaxUploadBytes = 50 << 20
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kotae/data/models/bge-small-en-v1.5.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 512
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 128
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Answer.BaseURL == "" {
		cfg.Answer.BaseURL = "https://api.together.xyz/v1"
	}
	if cfg.Answer.Model == "" {
		cfg.Answer.Model = "meta-llama/Llama-3-70b-chat-hf"
	}
	if cfg.Answer.APIKeyEnv == "" {
		cfg.Answer.APIKeyEnv = "TOGETHER_API_KEY"
	}
	if cfg.Answer.Temperature == 0 {
		cfg.Answer.Temperature = 0.2
	}
	if cfg.Answer.MaxTokens == 0 {
		cfg.Answer.MaxTokens = 768
	}
	if cfg.Answer.RequestTimeoutSec == 0 {
		cfg.Answer.RequestTimeoutSec = 45
	}
	if cfg.Answer.MaxAttempts == 0 {
		cfg.Answer.MaxAttempts = 3
	}
	if cfg.Answer.BackoffBaseSec == 0 {
		cfg.Answer.BackoffBaseSec = 2
	}
	if cfg.Answer.BackoffCapSec == 0 {
		cfg.Answer.BackoffCapSec = 10
	}
	if cfg.Answer.RequestsPerSec == 0 {
		cfg.Answer.RequestsPerSec = 1.0
	}
}
