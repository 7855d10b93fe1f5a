package store

import (
	"database/sql"
	"fmt"

	"github.com/xiaohei189/openim-sdk-core/internal/model"
)

// GetVersion returns the version row for (tableName, entityID), or
// (nil, nil) if none has been recorded yet.
func (s *Store) GetVersion(tableName, entityID string) (*model.VersionRow, error) {
	var v model.VersionRow
	err := s.db.QueryRow(`SELECT table_name, entity_id, version, version_id
		FROM local_version_sync WHERE table_name = ? AND entity_id = ?`, tableName, entityID,
	).Scan(&v.TableName, &v.EntityID, &v.Version, &v.VersionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get version %q/%q: %w", tableName, entityID, err)
	}
	return &v, nil
}

// SetVersion persists (tableName, entityID) -> (version, versionID).
func (s *Store) SetVersion(tableName, entityID string, version uint64, versionID string) error {
	_, err := s.db.Exec(`INSERT INTO local_version_sync (table_name, entity_id, version, version_id)
		VALUES (?,?,?,?)
		ON CONFLICT(table_name, entity_id) DO UPDATE SET
			version=excluded.version, version_id=excluded.version_id`,
		tableName, entityID, version, versionID)
	if err != nil {
		return fmt.Errorf("set version %q/%q: %w", tableName, entityID, err)
	}
	return nil
}
