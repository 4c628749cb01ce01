package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/artifact"
)

// artifactRepository 项目产物 SQLite 仓储实现
type artifactRepository struct {
	db *sql.DB
}

// NewArtifactRepository 创建产物仓储实例
func NewArtifactRepository(db *sql.DB) artifact.Repository {
	return &artifactRepository{db: db}
}

// Put 按 (session_id, artifact_type) upsert 产物
func (r *artifactRepository) Put(sessionID, artifactType, content string, metadata map[string]any) (*artifact.ProjectArtifact, error) {
	if sessionID == "" {
		return nil, apperr.New(apperr.KindValidation, "session_id must not be empty")
	}
	if !artifact.ValidType(artifactType) {
		return nil, apperr.Newf(apperr.KindValidation, "invalid artifact type: %s", artifactType)
	}

	// 会话可能尚未有消息，先确保存在
	now := nowUTC()
	if _, err := r.db.Exec(
		"INSERT OR IGNORE INTO chat_sessions(session_id, created_at, updated_at) VALUES (?, ?, ?)",
		sessionID, now, now,
	); err != nil {
		return nil, fmt.Errorf("failed to ensure session: %w", err)
	}

	var metadataJSON sql.NullString
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal artifact metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := r.db.Exec(
		`INSERT INTO project_artifacts(session_id, artifact_type, content, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, artifact_type)
		 DO UPDATE SET content = excluded.content, metadata = excluded.metadata, updated_at = excluded.updated_at`,
		sessionID, artifactType, content, metadataJSON, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert artifact: %w", err)
	}

	return r.Get(sessionID, artifactType)
}

// Get 查找产物
func (r *artifactRepository) Get(sessionID, artifactType string) (*artifact.ProjectArtifact, error) {
	row := r.db.QueryRow(
		`SELECT id, session_id, artifact_type, content, metadata, created_at, updated_at
		 FROM project_artifacts WHERE session_id = ? AND artifact_type = ?`,
		sessionID, artifactType,
	)
	a, err := scanArtifact(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.Newf(apperr.KindNotFound, "artifact %s not found for session %s", artifactType, sessionID)
		}
		return nil, err
	}
	return a, nil
}

// List 列出会话的全部产物
func (r *artifactRepository) List(sessionID string) ([]*artifact.ProjectArtifact, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, artifact_type, content, metadata, created_at, updated_at
		 FROM project_artifacts WHERE session_id = ? ORDER BY artifact_type ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*artifact.ProjectArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func scanArtifact(row rowScanner) (*artifact.ProjectArtifact, error) {
	var a artifact.ProjectArtifact
	var metadataJSON sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&a.ID, &a.SessionID, &a.ArtifactType, &a.Content, &metadataJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(metadataJSON.String), &meta); err == nil {
			a.Metadata = meta
		}
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// 编译时检查接口实现
var _ artifact.Repository = (*artifactRepository)(nil)
