package config

// MemoryDatabase keeps the session store in process memory.
const MemoryDatabase = ":memory:"

// Provider names accepted in model chains.
const (
	ProviderONNX      = "onnx"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGazetteer = "gazetteer"
	ProviderHash      = "hash"
)

// DefaultClusterSeed is the k-means seed used when none is configured.
const DefaultClusterSeed int64 = 42

// DefaultExtensions lists the file types accepted for upload and inbox watching.
var DefaultExtensions = []string{".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".txt", ".md"}

// DefaultNERLabels is the label set of CoNLL-2003 BERT token classifiers.
var DefaultNERLabels = []string{"O", "B-MISC", "I-MISC", "B-PER", "I-PER", "B-ORG", "I-ORG", "B-LOC", "I-LOC"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 64
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = MemoryDatabase
	}
	if cfg.Extract.Extensions == nil {
		cfg.Extract.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Extract.Workers == 0 {
		cfg.Extract.Workers = 4
	}
	if cfg.Tagger.MaxChars == 0 {
		cfg.Tagger.MaxChars = 1000000
	}
	if len(cfg.Tagger.Models) == 0 {
		cfg.Tagger.Models = []ModelConfig{
			{
				ID:            "bert-base-ner",
				Provider:      ProviderONNX,
				ModelPath:     "/usr/local/var/wakeru/models/bert-base-ner.onnx",
				TokenizerPath: "/usr/local/var/wakeru/models/bert-base-ner-tokenizer.json",
			},
			// Offline fallback when the ONNX model is not installed.
			{
				ID:        "terms",
				Provider:  ProviderGazetteer,
				TermsPath: "/usr/local/var/wakeru/models/terms.yaml",
			},
		}
	}
	for i := range cfg.Tagger.Models {
		m := &cfg.Tagger.Models[i]
		if m.Provider == ProviderONNX {
			if m.Labels == nil {
				m.Labels = append([]string(nil), DefaultNERLabels...)
			}
			if m.MaxSeqLen == 0 {
				m.MaxSeqLen = 512
			}
		}
		if m.SegmentChars == 0 {
			m.SegmentChars = defaultSegmentChars(m.Provider)
		}
		if m.APIKeyEnv == "" {
			m.APIKeyEnv = defaultAPIKeyEnv(m.Provider)
		}
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if len(cfg.Embedding.Models) == 0 {
		cfg.Embedding.Models = []ModelConfig{
			{
				ID:        "all-MiniLM-L6-v2",
				Provider:  ProviderONNX,
				ModelPath: "/usr/local/var/wakeru/models/all-MiniLM-L6-v2.onnx",
			},
			{
				ID:       "hash",
				Provider: ProviderHash,
			},
		}
	}
	for i := range cfg.Embedding.Models {
		m := &cfg.Embedding.Models[i]
		if m.Dimensions == 0 && (m.Provider == ProviderONNX || m.Provider == ProviderHash) {
			m.Dimensions = 384
		}
		if m.Provider == ProviderONNX {
			if m.MaxSeqLen == 0 {
				m.MaxSeqLen = 256
			}
			// Roughly one window per model input.
			if m.ChunkWords == 0 {
				m.ChunkWords = 180
			}
			if m.ChunkOverlap == 0 {
				m.ChunkOverlap = 30
			}
		}
		if m.APIKeyEnv == "" {
			m.APIKeyEnv = defaultAPIKeyEnv(m.Provider)
		}
	}
	if cfg.Cluster.MaxClusters == 0 {
		cfg.Cluster.MaxClusters = 5
	}
	if cfg.Cluster.Seed == nil {
		seed := DefaultClusterSeed
		cfg.Cluster.Seed = &seed
	}
	if cfg.Cluster.MaxIterations == 0 {
		cfg.Cluster.MaxIterations = 300
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Inbox.Directories) > 0 && cfg.Inbox.Recursive == nil {
		t := true
		cfg.Inbox.Recursive = &t
	}
}

func defaultSegmentChars(provider string) int {
	switch provider {
	case ProviderOpenAI, ProviderAnthropic:
		return 12000
	case ProviderONNX:
		return 1500
	}
	return 0
}

func defaultAPIKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	}
	return ""
}
