// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package config loads the proxy configuration from a folder of YAML files.
// All files are merged into one document (later files win per top-level key)
// before parsing, so sources can be split across files however the operator
// likes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v2"

	"github.com/feedproxy/feedproxy/pkg/feed"
	"github.com/feedproxy/feedproxy/pkg/handlers"
)

// Storage backend names accepted in settings.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Metrics client names accepted in settings.
const (
	MetricsNull       = "null"
	MetricsPrometheus = "prometheus"
)

// envPrefix marks a string value to be replaced by the named environment
// variable, e.g. "ENV:TELEGRAM_TOKEN".
const envPrefix = "ENV:"

// AppSettings is the settings block of the configuration.
type AppSettings struct {
	LogLevel      string `mapstructure:"log_level"`
	SentryDSN     string `mapstructure:"sentry_dsn"`
	PostStorage   string `mapstructure:"post_storage"`
	OutboxStorage string `mapstructure:"outbox_storage"`
	SQLiteDB      string `mapstructure:"sqlite_db"`
	MetricsClient string `mapstructure:"metrics_client"`
	MetricsFile   string `mapstructure:"metrics_file"`
}

func defaultAppSettings() AppSettings {
	return AppSettings{
		LogLevel:      "info",
		PostStorage:   StorageMemory,
		OutboxStorage: StorageMemory,
		MetricsClient: MetricsNull,
	}
}

// Validate implements handlers.Validatable.
func (s *AppSettings) Validate() error {
	for _, storage := range []string{s.PostStorage, s.OutboxStorage} {
		if storage != StorageMemory && storage != StorageSQLite {
			return fmt.Errorf("unknown storage type %q", storage)
		}
	}
	if (s.PostStorage == StorageSQLite || s.OutboxStorage == StorageSQLite) && s.SQLiteDB == "" {
		return fmt.Errorf("sqlite_db is required for sqlite storage")
	}
	switch s.MetricsClient {
	case MetricsNull:
	case MetricsPrometheus:
		if s.MetricsFile == "" {
			return fmt.Errorf("metrics_file is required for the prometheus client")
		}
	default:
		return fmt.Errorf("unknown metrics client %q", s.MetricsClient)
	}
	return nil
}

// Configuration is the fully parsed and validated configuration.
type Configuration struct {
	AppSettings AppSettings
	Sources     []feed.Source
	Subhandlers []handlers.Subhandler

	// Raw keeps the merged source document for dump-config.
	Raw map[string]interface{}
}

// LoadConfigurationError wraps everything that can be wrong with the
// configuration files themselves, as opposed to the handlers they reference.
type LoadConfigurationError struct {
	err error
}

func (e *LoadConfigurationError) Error() string {
	return fmt.Sprintf("load configuration: %v", e.err)
}

func (e *LoadConfigurationError) Unwrap() error {
	return e.err
}

// ReadFromFolder merges every *.yaml and *.yml file under folder and parses
// the result.
func ReadFromFolder(folder string) (*Configuration, error) {
	merged, err := mergeFolder(folder)
	if err != nil {
		return nil, err
	}
	if len(merged) == 0 {
		return nil, &LoadConfigurationError{err: fmt.Errorf("no configuration files found in %s", folder)}
	}
	return Load(merged)
}

func mergeFolder(folder string) (map[string]interface{}, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(folder, pattern))
		if err != nil {
			return nil, &LoadConfigurationError{err: err}
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	merged := make(map[string]interface{})
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, &LoadConfigurationError{err: err}
		}
		var part map[string]interface{}
		if err := yaml.Unmarshal(content, &part); err != nil {
			return nil, &LoadConfigurationError{err: fmt.Errorf("%s: %w", filepath.Base(file), err)}
		}
		for key, value := range part {
			merged[key] = value
		}
	}
	return merged, nil
}

// Load parses a merged configuration document. The document is normalized
// first: YAML's interface-keyed maps become string-keyed ones, so everything
// downstream (option decoding, outbox JSON serialization) sees plain JSON-ish
// values, and ENV: references are resolved.
func Load(raw map[string]interface{}) (*Configuration, error) {
	normalized, err := normalizeValue(raw)
	if err != nil {
		return nil, &LoadConfigurationError{err: err}
	}
	document := normalized.(map[string]interface{})

	var errs *multierror.Error

	settings := defaultAppSettings()
	if block, ok := document["settings"]; ok {
		settingsMap, mapOK := block.(map[string]interface{})
		if !mapOK {
			errs = multierror.Append(errs, fmt.Errorf("settings: not a mapping"))
		} else if err := handlers.DecodeOptions(settingsMap, &settings); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("settings: %w", err))
		}
	}

	templates := parseTemplates(document, &errs)
	sources := parseSources(document, templates, &errs)
	subhandlers := parseSubhandlers(document, &errs)

	if len(sources) == 0 && errs.ErrorOrNil() == nil {
		errs = multierror.Append(errs, fmt.Errorf("configuration must contain a filled 'sources' block"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, &LoadConfigurationError{err: err}
	}
	return &Configuration{
		AppSettings: settings,
		Sources:     sources,
		Subhandlers: subhandlers,
		Raw:         document,
	}, nil
}

func parseTemplates(document map[string]interface{}, errs **multierror.Error) map[string]string {
	templates := make(map[string]string)
	block, ok := document["templates"].(map[string]interface{})
	if !ok {
		return templates
	}
	for id, value := range block {
		template, isString := value.(string)
		if !isString {
			*errs = multierror.Append(*errs, fmt.Errorf("template %q: not a string", id))
			continue
		}
		templates[id] = template
	}
	return templates
}

func parseSources(document map[string]interface{}, templates map[string]string, errs **multierror.Error) []feed.Source {
	block, ok := document["sources"].(map[string]interface{})
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(block))
	for id := range block {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sources := make([]feed.Source, 0, len(ids))
	for _, id := range ids {
		sourceMap, mapOK := block[id].(map[string]interface{})
		if !mapOK {
			*errs = multierror.Append(*errs, fmt.Errorf("source %q: not a mapping", id))
			continue
		}
		var source feed.Source
		if err := handlers.DecodeOptions(sourceMap, &source); err != nil {
			*errs = multierror.Append(*errs, fmt.Errorf("source %q: %w", id, err))
			continue
		}
		source.ID = id
		for i := range source.Streams {
			if err := resolveStream(&source.Streams[i], templates); err != nil {
				*errs = multierror.Append(*errs, fmt.Errorf("source %q stream %d: %w", id, i, err))
			}
		}
		sources = append(sources, source)
	}
	return sources
}

// resolveStream validates the template invariant and inlines referenced
// templates, so a loaded stream always carries its template text.
func resolveStream(stream *feed.Stream, templates map[string]string) error {
	if err := stream.Validate(); err != nil {
		return err
	}
	if stream.MessageTemplateID != "" {
		template, ok := templates[stream.MessageTemplateID]
		if !ok {
			return fmt.Errorf("unknown message template %q", stream.MessageTemplateID)
		}
		stream.MessageTemplate = template
		stream.MessageTemplateID = ""
	}
	return nil
}

func parseSubhandlers(document map[string]interface{}, errs **multierror.Error) []handlers.Subhandler {
	block, ok := document["handlers"].(map[string]interface{})
	if !ok {
		return nil
	}

	var subhandlers []handlers.Subhandler
	for _, kind := range sortedKeys(block) {
		aliases, mapOK := block[kind].(map[string]interface{})
		if !mapOK {
			*errs = multierror.Append(*errs, fmt.Errorf("handlers %q: not a mapping", kind))
			continue
		}
		for _, alias := range sortedKeys(aliases) {
			aliasMap, aliasOK := aliases[alias].(map[string]interface{})
			if !aliasOK {
				*errs = multierror.Append(*errs, fmt.Errorf("handler %q: not a mapping", alias))
				continue
			}
			var sub struct {
				Type        string                 `mapstructure:"type"`
				InitOptions map[string]interface{} `mapstructure:"init_options"`
			}
			if err := handlers.DecodeOptions(aliasMap, &sub); err != nil {
				*errs = multierror.Append(*errs, fmt.Errorf("handler %q: %w", alias, err))
				continue
			}
			if sub.Type == "" {
				*errs = multierror.Append(*errs, fmt.Errorf("handler %q: type is required", alias))
				continue
			}
			subhandlers = append(subhandlers, handlers.Subhandler{
				HandlerType: handlers.Kind(kind),
				Alias:       alias,
				Type:        sub.Type,
				InitOptions: sub.InitOptions,
			})
		}
	}
	return subhandlers
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// normalizeValue rewrites the yaml.v2 representation into the JSON-style one:
// string-keyed maps all the way down, with ENV: strings resolved against the
// environment.
func normalizeValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case map[interface{}]interface{}:
		normalized := make(map[string]interface{}, len(v))
		for key, item := range v {
			normalizedItem, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			normalized[fmt.Sprint(key)] = normalizedItem
		}
		return normalized, nil
	case map[string]interface{}:
		normalized := make(map[string]interface{}, len(v))
		for key, item := range v {
			normalizedItem, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			normalized[key] = normalizedItem
		}
		return normalized, nil
	case []interface{}:
		normalized := make([]interface{}, len(v))
		for i, item := range v {
			normalizedItem, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			normalized[i] = normalizedItem
		}
		return normalized, nil
	case string:
		if name, found := strings.CutPrefix(v, envPrefix); found {
			resolved, ok := os.LookupEnv(name)
			if !ok {
				return nil, fmt.Errorf("environment variable %q is not set", name)
			}
			return strings.TrimSpace(resolved), nil
		}
		return v, nil
	default:
		return v, nil
	}
}

// Dump renders the merged configuration back to YAML, as dump-config shows it.
func (c *Configuration) Dump() (string, error) {
	out, err := yaml.Marshal(c.Raw)
	if err != nil {
		return "", fmt.Errorf("dump configuration: %w", err)
	}
	return string(out), nil
}
