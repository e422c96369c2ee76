package config

const (
	defaultAPIListen = ":8090"

	defaultEmbeddingProvider   = "openai"
	defaultEmbeddingTarget     = "https://api.openai.com/v1"
	defaultEmbeddingModel      = "text-embedding-3-small"
	defaultEmbeddingDimensions = 1536

	defaultVectorProvider = "memory"

	defaultChatProvider = "openai"
	defaultChatTarget   = "https://api.openai.com/v1"
	defaultChatModel    = "gpt-4o-mini"

	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	defaultBatchSize    = 50

	defaultEventsTopic = "folio.documents"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Chat: ChatConfig{
			Provider: defaultChatProvider,
			Target:   defaultChatTarget,
			Model:    defaultChatModel,
		},
		Chunking: ChunkingConfig{
			Size:      defaultChunkSize,
			Overlap:   defaultChunkOverlap,
			BatchSize: defaultBatchSize,
		},
		Events: EventsConfig{
			Enabled: false,
			Topic:   defaultEventsTopic,
		},
	}
}
