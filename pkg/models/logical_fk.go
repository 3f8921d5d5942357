package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Discovery Methods
// ============================================================================

// DiscoveryMethod records how a logical foreign key came to exist.
type DiscoveryMethod string

const (
	DiscoveryMethodManual         DiscoveryMethod = "MANUAL"
	DiscoveryMethodNameConvention DiscoveryMethod = "NAME_CONVENTION"
	DiscoveryMethodSPJoin         DiscoveryMethod = "SP_JOIN"
	DiscoveryMethodCorroborated   DiscoveryMethod = "CORROBORATED"
)

// ValidDiscoveryMethods contains all valid discovery method values.
var ValidDiscoveryMethods = []DiscoveryMethod{
	DiscoveryMethodManual,
	DiscoveryMethodNameConvention,
	DiscoveryMethodSPJoin,
	DiscoveryMethodCorroborated,
}

// IsValidDiscoveryMethod checks if the given method is valid.
func IsValidDiscoveryMethod(m DiscoveryMethod) bool {
	for _, v := range ValidDiscoveryMethods {
		if v == m {
			return true
		}
	}
	return false
}

// ParseDiscoveryMethod parses a stored discovery method case-insensitively.
func ParseDiscoveryMethod(s string) (DiscoveryMethod, bool) {
	m := DiscoveryMethod(strings.ToUpper(strings.TrimSpace(s)))
	return m, IsValidDiscoveryMethod(m)
}

// ============================================================================
// Logical FK Status
// ============================================================================

// LogicalFKStatus is the review state of a logical foreign key.
type LogicalFKStatus string

const (
	LogicalFKStatusSuggested LogicalFKStatus = "SUGGESTED"
	LogicalFKStatusConfirmed LogicalFKStatus = "CONFIRMED"
	LogicalFKStatusRejected  LogicalFKStatus = "REJECTED"
)

// ValidLogicalFKStatuses contains all valid status values.
var ValidLogicalFKStatuses = []LogicalFKStatus{
	LogicalFKStatusSuggested,
	LogicalFKStatusConfirmed,
	LogicalFKStatusRejected,
}

// IsValidLogicalFKStatus checks if the given status is valid.
func IsValidLogicalFKStatus(s LogicalFKStatus) bool {
	for _, v := range ValidLogicalFKStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ParseLogicalFKStatus parses a status case-insensitively.
func ParseLogicalFKStatus(s string) (LogicalFKStatus, bool) {
	status := LogicalFKStatus(strings.ToUpper(strings.TrimSpace(s)))
	return status, IsValidLogicalFKStatus(status)
}

// CanTransitionTo reports whether a manual status change from s to next is allowed.
// Suggested rows can be confirmed or rejected; rejected rows can still be confirmed.
// Confirmed rows are final until deleted.
func (s LogicalFKStatus) CanTransitionTo(next LogicalFKStatus) bool {
	switch s {
	case LogicalFKStatusSuggested:
		return next == LogicalFKStatusConfirmed || next == LogicalFKStatusRejected
	case LogicalFKStatusRejected:
		return next == LogicalFKStatusConfirmed
	default:
		return false
	}
}

// ============================================================================
// Column ID Lists
// ============================================================================

// ColumnIDList is an ordered list of column IDs making up one side of a key.
// Equality is positional; the JSON form exists only at the persistence edge.
type ColumnIDList []uuid.UUID

// Equal reports positional equality.
func (l ColumnIDList) Equal(other ColumnIDList) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

// KeyPart renders the list for use inside a canonical edge key.
func (l ColumnIDList) KeyPart() string {
	parts := make([]string, len(l))
	for i, id := range l {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

// EncodeJSON serializes the list for storage.
func (l ColumnIDList) EncodeJSON() (string, error) {
	ids := make([]string, len(l))
	for i, id := range l {
		ids[i] = id.String()
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode column id list: %w", err)
	}
	return string(data), nil
}

// DecodeColumnIDList parses a stored JSON list. Entries that fail to parse are
// replaced with uuid.Nil and reported in invalid so callers can log them
// without aborting a batch.
func DecodeColumnIDList(raw []byte) (list ColumnIDList, invalid []string, err error) {
	if len(raw) == 0 {
		return ColumnIDList{}, nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, nil, fmt.Errorf("decode column id list: %w", err)
	}
	list = make(ColumnIDList, len(ids))
	for i, s := range ids {
		id, parseErr := uuid.Parse(s)
		if parseErr != nil {
			invalid = append(invalid, s)
			list[i] = uuid.Nil
			continue
		}
		list[i] = id
	}
	return list, invalid, nil
}

// ============================================================================
// Logical Foreign Key
// ============================================================================

// LogicalForeignKey is a persisted, undeclared relationship between columns.
type LogicalForeignKey struct {
	ID              uuid.UUID       `json:"logical_fk_id"`
	ProjectID       uuid.UUID       `json:"project_id"`
	SourceTableID   uuid.UUID       `json:"source_table_id"`
	SourceColumnIDs ColumnIDList    `json:"source_column_ids"`
	TargetTableID   uuid.UUID       `json:"target_table_id"`
	TargetColumnIDs ColumnIDList    `json:"target_column_ids"`
	DiscoveryMethod DiscoveryMethod `json:"discovery_method"`
	ConfidenceScore float64         `json:"confidence_score"`
	Status          LogicalFKStatus `json:"status"`
	Reason          *string         `json:"reason,omitempty"`
	ConfirmedBy     *string         `json:"confirmed_by,omitempty"`
	ConfirmedAt     *time.Time      `json:"confirmed_at,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CreatedBy       string          `json:"created_by"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Display names (populated by join queries, not stored on the row)
	SourceTableName string `json:"source_table_name,omitempty"`
	TargetTableName string `json:"target_table_name,omitempty"`
}

// EdgeKey returns the canonical key of this logical FK.
func (fk *LogicalForeignKey) EdgeKey() string {
	return CompositeEdgeKey(fk.SourceTableID, fk.SourceColumnIDs, fk.TargetTableID, fk.TargetColumnIDs)
}

// CreateLogicalFKRequest is the input for manual logical FK creation.
type CreateLogicalFKRequest struct {
	SourceTableID   uuid.UUID    `json:"source_table_id"`
	SourceColumnIDs ColumnIDList `json:"source_column_ids"`
	TargetTableID   uuid.UUID    `json:"target_table_id"`
	TargetColumnIDs ColumnIDList `json:"target_column_ids"`
	Notes           *string      `json:"notes,omitempty"`
	CreatedBy       string       `json:"created_by"`
}
