// Package config loads runtime configuration for the attendance sync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-p string   Firestore project id
//	-d string   SQLite DSN of the local cache
//	-u string   connectivity probe URL
//	-i int      online status check interval (seconds)
//	-m          use the in-memory remote store instead of Firestore
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "project_id": "q-attendance",
//	  "cache_dsn": "attendance.db",
//	  "probe_url": "https://firestore.googleapis.com/",
//	  "online_check_interval": "3s",
//	  "use_memory_remote": false
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
