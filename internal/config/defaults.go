package config

// ContextPlaceholder marks where retrieved chunks go in the RAG system prompt.
const ContextPlaceholder = "{context}"

const (
	DefaultSystemPrompt    = "Answer the question by referring to the following documents.\n\n" + ContextPlaceholder
	DefaultNoContextAnswer = "No relevant documents were found in the knowledge base for this question."
)

// DefaultSeparators is the separator priority of the recursive splitter.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// knownEmbeddingDimensions lists output sizes of the OpenAI embedding models.
var knownEmbeddingDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 50
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 120
	}
	if cfg.Storage.VectorDBDir == "" {
		cfg.Storage.VectorDBDir = "vector_db"
	}

	if cfg.Mock {
		cfg.Embedding.Provider = ProviderMock
		cfg.Generation.Provider = ProviderMock
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = providerFor(cfg.Embedding.APIKey)
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = providerFor(cfg.Generation.APIKey)
	}

	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		if d, ok := knownEmbeddingDimensions[cfg.Embedding.Model]; ok {
			cfg.Embedding.Dimensions = d
		} else {
			cfg.Embedding.Dimensions = 1536
		}
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}

	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o"
	}
	if cfg.Generation.TimeoutSecs == 0 {
		cfg.Generation.TimeoutSecs = 60
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.ChunkOverlap == 0 && cfg.Ingest.ChunkSize > 200 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.Separators == nil {
		cfg.Ingest.Separators = append([]string(nil), DefaultSeparators...)
	}

	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 3
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = HardMaxTopK
	}
	if cfg.Retrieval.SystemPrompt == "" {
		cfg.Retrieval.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Retrieval.NoContextAnswer == "" {
		cfg.Retrieval.NoContextAnswer = DefaultNoContextAnswer
	}
	if cfg.Retrieval.IndexCacheSize == 0 {
		cfg.Retrieval.IndexCacheSize = 8
	}
}

func providerFor(apiKey string) string {
	if apiKey == "" {
		return ProviderMock
	}
	return ProviderOpenAI
}
