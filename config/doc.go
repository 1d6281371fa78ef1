// Package config loads framepipe configuration.
//
// LoadConfig uses Viper to read a config.yml found in the standard locations
// (or given explicitly), overlays environment variables and an optional .env
// file loaded with godotenv, and unmarshals into a struct with mapstructure
// tags. ServiceConfig carries the fields every binary shares.
//
//	var cfg AppConfig
//	err := config.LoadConfig("framepipe", &cfg, config.WithConfigFile(path))
//
// Environment keys use underscores for nesting: PIPELINE_CAPACITY overrides
// pipeline.capacity.
package config
