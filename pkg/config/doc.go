// Package config loads typed configuration from the environment.
//
// Load parses environment variables into any struct annotated with
// github.com/caarlos0/env tags and caches the result per type, so each
// component can load its own section (pg.Config, redis.Config,
// subscription.Config, ...) without re-parsing. Before the first Load the
// optional ./.env file is read with github.com/joho/godotenv; LoadEnv reads
// explicit files instead. Existing process variables always win over dotenv
// values.
//
//	config.LoadEnv(".env.local", ".env")
//
//	var cfg paystack.Config
//	config.MustLoad(&cfg)
package config
