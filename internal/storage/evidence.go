package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/campus-kit/helpdesk/internal/domain"
)

// DiskEvidenceStore keeps attachment blobs on local disk, one directory
// per ticket. Callers only ever see the opaque reference.
type DiskEvidenceStore struct {
	root string
}

// NewDiskEvidenceStore creates the store root if needed.
func NewDiskEvidenceStore(root string) (*DiskEvidenceStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence root: %w", err)
	}
	return &DiskEvidenceStore{root: root}, nil
}

// Save writes the blob and returns its reference.
func (s *DiskEvidenceStore) Save(ctx context.Context, ticketID, fileName, mimeType string, content []byte) (domain.EvidenceRef, error) {
	id := uuid.NewString()
	key := filepath.Join(ticketID, id+filepath.Ext(fileName))

	dir := filepath.Join(s.root, ticketID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.EvidenceRef{}, fmt.Errorf("create ticket dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.root, key), content, 0o644); err != nil {
		return domain.EvidenceRef{}, fmt.Errorf("write evidence: %w", err)
	}

	return domain.EvidenceRef{
		ID:         id,
		StorageKey: key,
		FileName:   fileName,
		MimeType:   mimeType,
		SizeBytes:  int64(len(content)),
	}, nil
}

// Open returns the stored blob for a reference.
func (s *DiskEvidenceStore) Open(ctx context.Context, ref domain.EvidenceRef) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.root, ref.StorageKey))
}
