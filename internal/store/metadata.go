package store

import "database/sql"

// SetMetadata upserts a key-value pair in the content_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO content_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM content_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetImportHash returns the recorded content hash for an imported file.
func (s *Store) GetImportHash(filename string) (string, error) {
	return s.GetMetadata("import_hash:" + filename)
}

// SetImportHash records the content hash of an imported file.
func (s *Store) SetImportHash(filename, hash string) error {
	return s.SetMetadata("import_hash:"+filename, hash)
}
