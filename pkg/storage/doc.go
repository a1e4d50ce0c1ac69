// Package storage provides the ledger stores and invoice sinks behind the
// pipeline: a filesystem layout for local runs, the S3 invoice bucket for
// production, and a SQLite database for the ledgers. All backends read and
// write whole artifacts; there are no incremental updates.
package storage
