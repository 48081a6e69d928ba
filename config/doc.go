// Package config loads service and flow configuration.
//
// It uses Viper to read a YAML file and environment variables, and godotenv
// to load a .env file first when one is present. Environment variables
// override file values using underscore-separated paths
// (e.g. LOGGING_LEVEL overrides logging.level).
//
// # Usage
//
//	var settings MySettings
//	err := config.LoadConfig("orders", &settings)
//
// Files are searched for as ./config/<service>.yml, ./<service>.yml,
// ./config/config.yml, ./config.yml and ../config/config.yml, each also
// with a .yaml extension, unless WithConfigFile names one explicitly.
package config
