package models

import (
	"time"

	"github.com/google/uuid"
)

// DependencyType classifies an edge in the table dependency graph.
type DependencyType string

const (
	DependencyTypeLogicalFK DependencyType = "LOGICAL_FK"
)

// TableDependency is a directed edge: the source table depends on the target table.
type TableDependency struct {
	ID             uuid.UUID      `json:"id"`
	ProjectID      uuid.UUID      `json:"project_id"`
	SourceTableID  uuid.UUID      `json:"source_table_id"`
	TargetTableID  uuid.UUID      `json:"target_table_id"`
	DependencyType DependencyType `json:"dependency_type"`
	Confidence     float64        `json:"confidence"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
