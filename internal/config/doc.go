// Package config handles configuration loading for coven-sync.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion, defaults for every optional field, and validation.
//
// # Configuration File
//
// Locations, first match wins:
//
//  1. The --config flag
//  2. Path from the COVEN_SYNC_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/coven-sync/config.yaml
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}. Unset
// variables expand to the empty string:
//
//	auth:
//	  jwt_secret: "${COVEN_SYNC_JWT_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8088"
//	  base_url: "https://sync.example.com"   # prefix of signed object URLs
//
//	database:
//	  driver: "sqlite"      # sqlite, sqlite3 (cgo), postgres
//	  path: "~/.local/share/coven-sync/sync.db"
//	  dsn: ""               # postgres only
//
//	storage:
//	  root: "~/.local/share/coven-sync/objects"
//	  bucket: "audio"
//	  signing_secret: "${COVEN_SYNC_SIGNING_SECRET}"
//	  signed_url_ttl: "900s"
//
//	secrets:
//	  path: "~/.local/share/coven-sync/secrets.toml"
//	  key_prefix: "integration-secrets"
//	  encryption_key: ""    # base64, 32 bytes
//
//	tailscale:
//	  enabled: false
//	  hostname: "coven-sync"
//	  auth_key: "${TS_AUTHKEY}"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
