package logicalfk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/schemadoc/schemadoc-engine/pkg/models"
)

// Scoring weights. Kept as decimals so sums like 0.60+0.10 stay exact and
// ties round the same way every time.
var (
	namingBase         = decimal.RequireFromString("0.60")
	spJoinBase         = decimal.RequireFromString("0.50")
	namingBonus        = decimal.RequireFromString("0.15")
	typeAdjustment     = decimal.RequireFromString("0.10")
	repetitionStep     = decimal.RequireFromString("0.05")
	repetitionMax      = decimal.RequireFromString("0.20")
	corroborationBonus = decimal.RequireFromString("0.25")

	spJoinOnlyCap   = decimal.RequireFromString("0.85")
	namingOnlyCap   = decimal.RequireFromString("0.80")
	typeMismatchCap = decimal.RequireFromString("0.55")
)

// Cap identifiers recorded in ConfidenceResult.CapsApplied.
const (
	CapSPJoinOnly   = "sp_join_only_cap"
	CapNamingOnly   = "naming_only_cap"
	CapTypeMismatch = "type_mismatch_cap"
)

// ConfidenceResult is the full scoring breakdown for one edge.
type ConfidenceResult struct {
	Base               decimal.Decimal
	NamingBonus        decimal.Decimal
	TypeAdjustment     decimal.Decimal
	RepetitionBonus    decimal.Decimal
	CorroborationBonus decimal.Decimal
	Raw                decimal.Decimal
	Final              decimal.Decimal

	// CapsApplied lists the caps that actually lowered the score, in order.
	CapsApplied []string
	Clamped     bool
}

// Score returns the final confidence as a float for storage and display.
func (r *ConfidenceResult) Score() float64 {
	f, _ := r.Final.Float64()
	return f
}

// CalculateConfidence scores an edge from its signals.
func CalculateConfidence(s models.DetectionSignals) *ConfidenceResult {
	r := &ConfidenceResult{
		NamingBonus:        decimal.Zero,
		RepetitionBonus:    decimal.Zero,
		CorroborationBonus: decimal.Zero,
	}

	switch {
	case s.Corroborated:
		r.Base = decimal.Max(namingBase, spJoinBase)
	case s.SPJoinDetected:
		r.Base = spJoinBase
	default:
		r.Base = namingBase
	}

	if s.SPJoinDetected && s.HasIDSuffix {
		r.NamingBonus = namingBonus
	}

	if s.TypeMatch {
		r.TypeAdjustment = typeAdjustment
	} else {
		r.TypeAdjustment = typeAdjustment.Neg()
	}

	if s.SPJoinDetected && s.SPCount > 1 {
		r.RepetitionBonus = decimal.Min(repetitionMax, repetitionStep.Mul(decimal.NewFromInt(int64(s.SPCount-1))))
	}

	if s.Corroborated {
		r.CorroborationBonus = corroborationBonus
	}

	r.Raw = r.Base.Add(r.NamingBonus).Add(r.TypeAdjustment).Add(r.RepetitionBonus).Add(r.CorroborationBonus)

	v := r.Raw
	if !s.Corroborated {
		switch {
		case s.SPJoinDetected && !s.NamingDetected:
			v = r.applyCap(v, spJoinOnlyCap, CapSPJoinOnly)
		case s.NamingDetected && !s.SPJoinDetected:
			v = r.applyCap(v, namingOnlyCap, CapNamingOnly)
		}
		if !s.TypeMatch {
			v = r.applyCap(v, typeMismatchCap, CapTypeMismatch)
		}
	}

	switch {
	case v.GreaterThan(decimal.NewFromInt(1)):
		v = decimal.NewFromInt(1)
		r.Clamped = true
	case v.IsNegative():
		v = decimal.Zero
		r.Clamped = true
	}

	r.Final = roundScore(v)
	return r
}

// roundScore rounds to two places, half away from zero (0.565 -> 0.57).
func roundScore(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

func (r *ConfidenceResult) applyCap(v, limit decimal.Decimal, name string) decimal.Decimal {
	if v.GreaterThan(limit) {
		r.CapsApplied = append(r.CapsApplied, name)
		return limit
	}
	return v
}

// BuildReason renders a one-line explanation of a candidate's evidence and score.
func BuildReason(e *MergedEdge, r *ConfidenceResult) string {
	var parts []string

	switch {
	case e.Signals.Corroborated:
		parts = append(parts, fmt.Sprintf("Naming convention and %s agree", procedureCount(e.Signals.SPCount)))
	case e.Signals.SPJoinDetected:
		parts = append(parts, fmt.Sprintf("Joined in %s", procedureCount(e.Signals.SPCount)))
	default:
		parts = append(parts, fmt.Sprintf("Column %s names table %s", e.Source.ColumnName, e.Target.TableName))
	}

	if e.Signals.TypeMatch {
		parts = append(parts, fmt.Sprintf("types compatible (%s/%s)", e.Source.DataType, e.Target.DataType))
	} else {
		parts = append(parts, fmt.Sprintf("type mismatch (%s/%s)", e.Source.DataType, e.Target.DataType))
	}

	if e.Ambiguous {
		parts = append(parts, "ambiguous target key")
	}

	if len(r.CapsApplied) > 0 {
		parts = append(parts, "capped by "+strings.Join(r.CapsApplied, ", "))
	}

	return strings.Join(parts, "; ") + fmt.Sprintf(" (confidence %s)", r.Final.StringFixed(2))
}

func procedureCount(n int) string {
	if n == 1 {
		return "1 stored procedure"
	}
	return fmt.Sprintf("%d stored procedures", n)
}
