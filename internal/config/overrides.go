package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DOCQA_SERVER_ADDR.
const EnvPrefix = "DOCQA"

// NewViper returns a viper instance that resolves dotted config keys from
// DOCQA_* environment variables. Callers bind their flags to it.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key explicitly set in v (bound flag or
// environment variable) onto cfg, then re-applies defaults and validates.
// Precedence is flag > env > file > defaults.
func ApplyOverrides(cfg *AppConfig, v *viper.Viper) error {
	for key, set := range overrideSetters(cfg) {
		if !v.IsSet(key) {
			continue
		}
		if err := set(v.GetString(key)); err != nil {
			return fmt.Errorf("override %s: %w", key, err)
		}
	}
	applyConfigDefaults(cfg)
	return cfg.Validate()
}

// OverrideKeys lists the config keys that can be overridden.
func OverrideKeys() []string {
	keys := make([]string, 0, 16)
	for k := range overrideSetters(&AppConfig{}) {
		keys = append(keys, k)
	}
	return keys
}

func overrideSetters(cfg *AppConfig) map[string]func(string) error {
	str := func(dst *string) func(string) error {
		return func(s string) error { *dst = s; return nil }
	}
	num := func(dst *int) func(string) error {
		return func(s string) error {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	return map[string]func(string) error{
		"embedder.type":        str(&cfg.Embedder.Type),
		"embedder.dimension":   num(&cfg.Embedder.Dimension),
		"completion.base_url":  str(&cfg.Completion.BaseURL),
		"completion.model":     str(&cfg.Completion.Model),
		"chunker.type":         str(&cfg.Chunker.Type),
		"vector_store.type":    str(&cfg.VectorStore.Type),
		"vector_store.path":    str(&cfg.VectorStore.Path),
		"retriever.top_k":      num(&cfg.Retriever.TopK),
		"retriever.overfetch":  num(&cfg.Retriever.Overfetch),
		"summarizer.type":      str(&cfg.Summarizer.Type),
		"catalog.path":         str(&cfg.Catalog.Path),
		"server.addr":          str(&cfg.Server.Addr),
		"server.upload_dir":    str(&cfg.Server.UploadDir),
		"server.max_upload_mb": num(&cfg.Server.MaxUploadMB),
		"log.level":            str(&cfg.Log.Level),
		"log.format":           str(&cfg.Log.Format),
		"log.file":             str(&cfg.Log.File),
	}
}
