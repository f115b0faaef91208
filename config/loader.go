/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import "io"

// Loader fills configuration sections: it registers the defaults of every section first
// and then lets each section read and validate its values.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a Loader over viper that also reads environment variables with the given prefix.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a Loader over the DataProvider.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// Load fills sections from defaults and environment variables.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	return l.load(nil, cfg, cfgs)
}

// LoadFromFile fills sections from the file, defaults and environment variables.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	return l.load(func() error { return l.DataProvider.SetFromFile(path, dataType) }, cfg, cfgs)
}

// LoadFromReader fills sections from the reader, defaults and environment variables.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	return l.load(func() error { return l.DataProvider.SetFromReader(reader, dataType) }, cfg, cfgs)
}

func (l *Loader) load(read func() error, first Config, rest []Config) error {
	if read != nil {
		if err := read(); err != nil {
			return err
		}
	}
	all := append([]Config{first}, rest...)
	for _, cfg := range all {
		cfg.SetProviderDefaults(providerFor(cfg, l.DataProvider))
	}
	for _, cfg := range all {
		if err := cfg.Set(providerFor(cfg, l.DataProvider)); err != nil {
			return err
		}
	}
	return nil
}
