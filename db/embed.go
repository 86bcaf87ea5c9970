// Package db embeds the SQL schema applied at startup.
package db

import _ "embed"

// Schema holds the idempotent DDL for the storefront tables. Executed as a
// single batch by the repository layer's migration runner.
//
//go:embed migrations/001_schema.sql
var Schema string
