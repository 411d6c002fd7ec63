package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"recordshop/internal/core/id"
	"recordshop/internal/domain/audit"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the change set size above which entries are
// stored compressed.
const DefaultCompressThreshold = 10 * 1024

// auditRow is the stored form of an audit entry.
type auditRow struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            audit.Action    `db:"action"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	RequestID         *string         `db:"request_id"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService stores the change log in sys_audit.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ audit.Log = (*AuditService)(nil)

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: DefaultCompressThreshold,
	}, nil
}

// LogChange implements audit.Log.
func (s *AuditService) LogChange(ctx context.Context, entityType string, entityID id.ID, action audit.Action, changes map[string]any) error {
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	row := s.pack(auditRow{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Changes:    changesJSON,
		RequestID:  requestIDFrom(ctx),
		CreatedAt:  time.Now().UTC(),
	})

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit (
			id, entity_type, entity_id, action,
			changes, changes_compressed, compression_algo, request_id,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		row.ID, row.EntityType, row.EntityID, row.Action,
		row.Changes, row.ChangesCompressed, row.CompressionAlgo, row.RequestID,
		row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// GetEntityHistory implements audit.Log. Newest first.
func (s *AuditService) GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]audit.Entry, error) {
	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, `
		SELECT id, entity_type, entity_id, action,
		       changes, changes_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var r auditRow
		err := rows.Scan(
			&r.ID, &r.EntityType, &r.EntityID, &r.Action,
			&r.Changes, &r.ChangesCompressed, &r.CompressionAlgo, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		changes, err := s.unpack(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, audit.Entry{
			ID:         r.ID,
			EntityType: r.EntityType,
			EntityID:   r.EntityID,
			Action:     r.Action,
			Changes:    changes,
			CreatedAt:  r.CreatedAt,
		})
	}

	return entries, rows.Err()
}

// pack compresses large change sets.
func (s *AuditService) pack(r auditRow) auditRow {
	r.CompressionAlgo = CompressionNone
	if len(r.Changes) > s.compressThreshold {
		r.ChangesCompressed = s.encoder.EncodeAll(r.Changes, nil)
		r.Changes = nil
		r.CompressionAlgo = CompressionZstd
	}
	return r
}

func (s *AuditService) unpack(r auditRow) (json.RawMessage, error) {
	if r.CompressionAlgo != CompressionZstd || len(r.ChangesCompressed) == 0 {
		return r.Changes, nil
	}
	decompressed, err := s.decoder.DecodeAll(r.ChangesCompressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress changes: %w", err)
	}
	return decompressed, nil
}
