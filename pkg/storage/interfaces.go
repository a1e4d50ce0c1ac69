package storage

import (
	"context"
	"time"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/oldpi"
	"github.com/nerc-project/invoicing/pkg/prepay"
)

// LedgerStore persists the externally-owned billing state the pipeline reads
// at the start of a run and writes back, whole, after it completes. The core
// never performs partial writes mid-pipeline.
type LedgerStore interface {
	FetchOldPIs(ctx context.Context) (*oldpi.Ledger, error)
	SaveOldPIs(ctx context.Context, ledger *oldpi.Ledger) error
	FetchPrepayDebits(ctx context.Context) ([]prepay.DebitEntry, error)
	SavePrepayDebits(ctx context.Context, debits []prepay.DebitEntry) error
	FetchAliases(ctx context.Context) (map[string][]string, error)
}

// InvoiceSink receives exported invoice artifacts for one invoice month.
type InvoiceSink interface {
	// PutInvoice stores an artifact under its month, alongside a
	// timestamped archive copy where the backend supports one.
	PutInvoice(ctx context.Context, month invoices.Month, filename string, body []byte) error
}

// Config selects and configures a storage backend.
type Config struct {
	// Backend is "filesystem", "s3" or "sqlite".
	Backend string

	// Filesystem config
	Root string

	// S3 config
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	// SQLite config
	SQLitePath string
}

// Timestamp returns the archive timestamp, e.g. 20240301T120000Z.
func Timestamp() string {
	return time.Now().UTC().Format("20060102T150405Z")
}
