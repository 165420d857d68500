// Package config loads roomsync client configuration.
//
// Settings come from three layers, later layers winning:
//
//  1. built-in defaults (New)
//  2. a YAML file, roomsync.yaml by default
//  3. ROOMSYNC_* environment variables
//
// # Configuration File Structure
//
//	server:
//	  url: wss://game.example.com
//	  origin: https://play.example.com
//	  session_token: ""
//	room:
//	  join_timeout: 15s
//	  input_interval: 33ms
//	  heartbeat_interval: 2s
//	  max_pending: 256
//	transport:
//	  handshake_timeout: 10s
//	  max_message_size: 16777216
//	log:
//	  level: info
//	  format: text
//	metrics:
//	  listen: 127.0.0.1:9464
//	record:
//	  dir: ./recordings
//	  s3_bucket: ""
//	tokens:
//	  redis_addr: ""
//	  ttl: 24h
//
// Env lists every variable with its description.
package config
