// Package config loads application configuration from environment
// variables and validates it before any record processing begins.
package config
