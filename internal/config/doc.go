// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > YAML config >
// Environment variables > Defaults. HOST, PORT and RELOAD default to
// 0.0.0.0, 8000 and false; a non-numeric PORT is a load error.
package config
