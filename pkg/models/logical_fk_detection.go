package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DetectionColumn is one column of the schema snapshot used by a detection run.
type DetectionColumn struct {
	TableID      uuid.UUID `json:"table_id"`
	ColumnID     uuid.UUID `json:"column_id"`
	SchemaName   string    `json:"schema_name"`
	TableName    string    `json:"table_name"`
	ColumnName   string    `json:"column_name"`
	DataType     string    `json:"data_type"`
	IsPrimaryKey bool      `json:"is_primary_key"`
	IsForeignKey bool      `json:"is_foreign_key"`
	IsUnique     bool      `json:"is_unique"`
}

// EdgeKey is the canonical identity of a single-column relationship.
type EdgeKey struct {
	SourceTableID  uuid.UUID
	SourceColumnID uuid.UUID
	TargetTableID  uuid.UUID
	TargetColumnID uuid.UUID
}

// String renders the key in the same form as CompositeEdgeKey for one-column lists,
// so detected edges can be looked up in sets built from persisted rows.
func (k EdgeKey) String() string {
	return fmt.Sprintf("%s:%s->%s:%s", k.SourceTableID, k.SourceColumnID, k.TargetTableID, k.TargetColumnID)
}

// CompositeEdgeKey renders the canonical key for possibly multi-column lists.
func CompositeEdgeKey(sourceTableID uuid.UUID, sourceColumns ColumnIDList, targetTableID uuid.UUID, targetColumns ColumnIDList) string {
	return fmt.Sprintf("%s:%s->%s:%s", sourceTableID, sourceColumns.KeyPart(), targetTableID, targetColumns.KeyPart())
}

// ============================================================================
// Confidence Bands
// ============================================================================

// ConfidenceBand is a display bucket derived from a confidence score.
type ConfidenceBand string

const (
	ConfidenceBandHighlyConfident ConfidenceBand = "HighlyConfident"
	ConfidenceBandVeryLikely      ConfidenceBand = "VeryLikely"
	ConfidenceBandLikely          ConfidenceBand = "Likely"
	ConfidenceBandPossible        ConfidenceBand = "Possible"
	ConfidenceBandLow             ConfidenceBand = "Low"
)

// BandForConfidence classifies a score using inclusive lower bounds.
func BandForConfidence(score float64) ConfidenceBand {
	switch {
	case score >= 0.95:
		return ConfidenceBandHighlyConfident
	case score >= 0.85:
		return ConfidenceBandVeryLikely
	case score >= 0.70:
		return ConfidenceBandLikely
	case score >= 0.55:
		return ConfidenceBandPossible
	default:
		return ConfidenceBandLow
	}
}

// ============================================================================
// Candidates
// ============================================================================

// DetectionSignals is the evidence vector for one merged edge.
type DetectionSignals struct {
	NamingDetected bool `json:"naming_detected"`
	SPJoinDetected bool `json:"sp_join_detected"`
	Corroborated   bool `json:"corroborated"`
	TypeMatch      bool `json:"type_match"`
	HasIDSuffix    bool `json:"has_id_suffix"`
	SPCount        int  `json:"sp_count"`
}

// LogicalFKCandidate is a detected, scored, not yet persisted relationship.
type LogicalFKCandidate struct {
	SourceTableID    uuid.UUID         `json:"source_table_id"`
	SourceTableName  string            `json:"source_table_name"`
	SourceColumnID   uuid.UUID         `json:"source_column_id"`
	SourceColumnName string            `json:"source_column_name"`
	SourceDataType   string            `json:"source_data_type"`
	TargetTableID    uuid.UUID         `json:"target_table_id"`
	TargetTableName  string            `json:"target_table_name"`
	TargetColumnID   uuid.UUID         `json:"target_column_id"`
	TargetColumnName string            `json:"target_column_name"`
	TargetDataType   string            `json:"target_data_type"`
	ConfidenceScore  float64           `json:"confidence_score"`
	ConfidenceBand   ConfidenceBand    `json:"confidence_band"`
	Reason           string            `json:"reason"`
	IsAmbiguous      bool              `json:"is_ambiguous"`
	DiscoveryMethods []DiscoveryMethod `json:"discovery_methods"`
	SPEvidence       []string          `json:"sp_evidence,omitempty"`
	MatchCount       int               `json:"match_count"`
	Signals          DetectionSignals  `json:"signals"`
	CapsApplied      []string          `json:"caps_applied,omitempty"`

	// ExistingStatus is set when the edge already exists as a revisable logical FK.
	ExistingStatus *LogicalFKStatus `json:"existing_status,omitempty"`
}

// EdgeKey returns the canonical key of the candidate.
func (c *LogicalFKCandidate) EdgeKey() EdgeKey {
	return EdgeKey{
		SourceTableID:  c.SourceTableID,
		SourceColumnID: c.SourceColumnID,
		TargetTableID:  c.TargetTableID,
		TargetColumnID: c.TargetColumnID,
	}
}

// PersistedDiscoveryMethod collapses the candidate's methods into the single stored value.
func (c *LogicalFKCandidate) PersistedDiscoveryMethod() DiscoveryMethod {
	var naming, spJoin bool
	for _, m := range c.DiscoveryMethods {
		switch m {
		case DiscoveryMethodNameConvention:
			naming = true
		case DiscoveryMethodSPJoin:
			spJoin = true
		}
	}
	switch {
	case naming && spJoin:
		return DiscoveryMethodCorroborated
	case spJoin:
		return DiscoveryMethodSPJoin
	default:
		return DiscoveryMethodNameConvention
	}
}

// ============================================================================
// Stored Procedures
// ============================================================================

// ProcedureDialect identifies the SQL dialect of a procedure body.
type ProcedureDialect string

const (
	ProcedureDialectTSQL     ProcedureDialect = "tsql"
	ProcedureDialectPostgres ProcedureDialect = "postgres"
)

// StoredProcedure is a procedure definition available for join analysis.
type StoredProcedure struct {
	SchemaName string           `json:"schema_name"`
	Name       string           `json:"name"`
	Definition string           `json:"definition"`
	Dialect    ProcedureDialect `json:"dialect"`
}

// QualifiedName returns schema.name, or name when no schema is known.
func (p *StoredProcedure) QualifiedName() string {
	if p.SchemaName == "" {
		return p.Name
	}
	return p.SchemaName + "." + p.Name
}

// JoinCondition is one equality join extracted from procedure source.
type JoinCondition struct {
	LeftTable   string `json:"left_table"`
	LeftColumn  string `json:"left_column"`
	RightTable  string `json:"right_table"`
	RightColumn string `json:"right_column"`
}

// ============================================================================
// Run Results
// ============================================================================

// SPAnalysisStatus describes how the stored-procedure phase went.
type SPAnalysisStatus string

const (
	SPAnalysisOK       SPAnalysisStatus = "ok"
	SPAnalysisDegraded SPAnalysisStatus = "degraded"
	SPAnalysisSkipped  SPAnalysisStatus = "skipped"
)

// SPAnalysisReport summarizes the stored-procedure phase of a run.
type SPAnalysisReport struct {
	Status              SPAnalysisStatus `json:"status"`
	ProceduresAnalyzed  int              `json:"procedures_analyzed"`
	ProceduresFailed    int              `json:"procedures_failed"`
	JoinConditionsFound int              `json:"join_conditions_found"`
	Warning             string           `json:"warning,omitempty"`
}

// DetectionResult is the outcome of a detection run.
type DetectionResult struct {
	ProjectID        uuid.UUID             `json:"project_id"`
	Candidates       []*LogicalFKCandidate `json:"candidates"`
	SPAnalysis       SPAnalysisReport      `json:"sp_analysis"`
	AlgorithmVersion string                `json:"algorithm_version"`
	ColumnsScanned   int                   `json:"columns_scanned"`
}

// UpsertOutcome reports what the upsert did for one candidate.
type UpsertOutcome string

const (
	UpsertOutcomeInserted   UpsertOutcome = "inserted"
	UpsertOutcomeResurfaced UpsertOutcome = "resurfaced"
	UpsertOutcomeRefreshed  UpsertOutcome = "refreshed"
	UpsertOutcomeUnchanged  UpsertOutcome = "unchanged"
)

// UpsertResult aggregates upsert outcomes for a batch.
type UpsertResult struct {
	Inserted   int `json:"inserted"`
	Resurfaced int `json:"resurfaced"`
	Refreshed  int `json:"refreshed"`
	Unchanged  int `json:"unchanged"`
}

// Affected is the number of rows written.
func (r UpsertResult) Affected() int {
	return r.Inserted + r.Resurfaced + r.Refreshed
}

// Record adds an outcome to the totals.
func (r *UpsertResult) Record(outcome UpsertOutcome) {
	switch outcome {
	case UpsertOutcomeInserted:
		r.Inserted++
	case UpsertOutcomeResurfaced:
		r.Resurfaced++
	case UpsertOutcomeRefreshed:
		r.Refreshed++
	default:
		r.Unchanged++
	}
}

// DetectionPersistResult is returned by detect-and-persist.
type DetectionPersistResult struct {
	Detection *DetectionResult `json:"detection"`
	Upsert    UpsertResult     `json:"upsert"`
	Affected  int              `json:"affected"`
}

// ============================================================================
// Staleness
// ============================================================================

// DetectionMetadata is the per-project record of detection runs and schema syncs.
type DetectionMetadata struct {
	ProjectID        uuid.UUID  `json:"project_id"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	AlgorithmVersion *string    `json:"algorithm_version,omitempty"`
	LastSchemaSyncAt *time.Time `json:"last_schema_sync_at,omitempty"`
}

// StalenessReason explains why detection results need a re-run.
type StalenessReason string

const (
	StalenessReasonNone           StalenessReason = ""
	StalenessReasonNeverRun       StalenessReason = "never_run"
	StalenessReasonVersionChanged StalenessReason = "algorithm_version_changed"
	StalenessReasonSchemaResynced StalenessReason = "schema_resynced"
)

// DetectionStaleness is the advisory staleness verdict for a project.
type DetectionStaleness struct {
	Stale            bool            `json:"stale"`
	Reason           StalenessReason `json:"reason,omitempty"`
	LastRunAt        *time.Time      `json:"last_run_at,omitempty"`
	AlgorithmVersion *string         `json:"algorithm_version,omitempty"`
	CurrentVersion   string          `json:"current_version"`
	LastSchemaSyncAt *time.Time      `json:"last_schema_sync_at,omitempty"`
}

// EvaluateStaleness decides whether results recorded in meta are stale for currentVersion.
func EvaluateStaleness(meta *DetectionMetadata, currentVersion string) *DetectionStaleness {
	result := &DetectionStaleness{CurrentVersion: currentVersion}
	if meta == nil || meta.LastRunAt == nil {
		result.Stale = true
		result.Reason = StalenessReasonNeverRun
		if meta != nil {
			result.LastSchemaSyncAt = meta.LastSchemaSyncAt
		}
		return result
	}

	result.LastRunAt = meta.LastRunAt
	result.AlgorithmVersion = meta.AlgorithmVersion
	result.LastSchemaSyncAt = meta.LastSchemaSyncAt

	switch {
	case meta.AlgorithmVersion == nil || *meta.AlgorithmVersion != currentVersion:
		result.Stale = true
		result.Reason = StalenessReasonVersionChanged
	case meta.LastSchemaSyncAt != nil && meta.LastSchemaSyncAt.After(*meta.LastRunAt):
		result.Stale = true
		result.Reason = StalenessReasonSchemaResynced
	}
	return result
}
