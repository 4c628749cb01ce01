package artifact

import "time"

// 产物类型常量
const (
	TypeProjectIdea       = "project_idea"
	TypeTechStack         = "tech_stack"
	TypeSubmissionSummary = "submission_summary"
)

// Types 全部产物类型，按导出顺序排列
var Types = []string{TypeProjectIdea, TypeTechStack, TypeSubmissionSummary}

// ProjectArtifact 项目产物实体
// 每个 (session_id, artifact_type) 至多一条，重新生成按 upsert 覆盖
type ProjectArtifact struct {
	ID           int64
	SessionID    string
	ArtifactType string
	Content      string
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidType 校验产物类型
func ValidType(t string) bool {
	switch t {
	case TypeProjectIdea, TypeTechStack, TypeSubmissionSummary:
		return true
	}
	return false
}

// Repository 产物仓储接口
type Repository interface {
	// Put 按 (session_id, artifact_type) upsert 产物
	Put(sessionID, artifactType, content string, metadata map[string]any) (*ProjectArtifact, error)

	// Get 查找产物，缺失时返回 not_found
	Get(sessionID, artifactType string) (*ProjectArtifact, error)

	// List 列出会话的全部产物
	List(sessionID string) ([]*ProjectArtifact, error)
}
