package knowledge

import "time"

type Config struct {
	// DriveFolderID is the system-wide folder searched when a tenant has no
	// folder of its own.
	DriveFolderID string        `split_words:"true"`
	Root          string        `split_words:"true" default:"knowledge"`
	TopK          int           `split_words:"true" default:"6"`
	Timeout       time.Duration `split_words:"true" default:"8s"`
	CacheTTL      time.Duration `split_words:"true" default:"5m"`
	// VectorBackend selects the semantic index: "pgvector", "chromem" or "".
	VectorBackend string `split_words:"true"`
}

type EmbeddingConfig struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Model   string        `envconfig:"MODEL" split_words:"true" default:"text-embedding-3-small"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}
