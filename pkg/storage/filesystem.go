package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/oldpi"
	"github.com/nerc-project/invoicing/pkg/prepay"
	"github.com/nerc-project/invoicing/pkg/processors"
)

// FilesystemStore keeps ledgers and exported invoices under a local root
// directory, mirroring the S3 bucket layout.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

func (s *FilesystemStore) oldPIPath() string {
	return filepath.Join(s.root, "PIs", "PI.csv")
}

func (s *FilesystemStore) prepayDebitsPath() string {
	return filepath.Join(s.root, "Prepay", "prepay_debits.csv")
}

func (s *FilesystemStore) aliasPath() string {
	return filepath.Join(s.root, "PIs", "alias.csv")
}

func (s *FilesystemStore) FetchOldPIs(ctx context.Context) (*oldpi.Ledger, error) {
	f, err := os.Open(s.oldPIPath())
	if os.IsNotExist(err) {
		return &oldpi.Ledger{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open old PI ledger: %w", err)
	}
	defer f.Close()
	return oldpi.Read(f)
}

func (s *FilesystemStore) SaveOldPIs(ctx context.Context, ledger *oldpi.Ledger) error {
	var buf bytes.Buffer
	if err := oldpi.Write(&buf, ledger); err != nil {
		return err
	}
	return s.writeAtomic(s.oldPIPath(), buf.Bytes())
}

func (s *FilesystemStore) FetchPrepayDebits(ctx context.Context) ([]prepay.DebitEntry, error) {
	f, err := os.Open(s.prepayDebitsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open prepay debits: %w", err)
	}
	defer f.Close()
	return prepay.ReadDebits(f)
}

func (s *FilesystemStore) SavePrepayDebits(ctx context.Context, debits []prepay.DebitEntry) error {
	var buf bytes.Buffer
	if err := prepay.WriteDebits(&buf, debits); err != nil {
		return err
	}
	return s.writeAtomic(s.prepayDebitsPath(), buf.Bytes())
}

func (s *FilesystemStore) FetchAliases(ctx context.Context) (map[string][]string, error) {
	f, err := os.Open(s.aliasPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open PI alias file: %w", err)
	}
	defer f.Close()
	return processors.ReadAliases(f)
}

func (s *FilesystemStore) PutInvoice(ctx context.Context, month invoices.Month, filename string, body []byte) error {
	path := filepath.Join(s.root, "Invoices", month.String(), filename)
	return s.writeAtomic(path, body)
}

// writeAtomic writes through a temp file and rename so a failed run never
// leaves a half-written ledger behind.
func (s *FilesystemStore) writeAtomic(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
