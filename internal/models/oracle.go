// Package models defines oracle reply structures shared between the oracle
// gateway and the decision coercion layer.
package models

// OracleReplyKind tags the outcome of one oracle query.
type OracleReplyKind string

const (
	// OracleReplyOk means the reply parsed to at least a JSON object; its
	// fields may still be partial or ill-typed.
	OracleReplyOk OracleReplyKind = "ok"
	// OracleReplyMalformed means the reply text was not a JSON object at all.
	OracleReplyMalformed OracleReplyKind = "malformed"
	// OracleReplyFailure means the oracle was unreachable, timed out, or
	// returned a transport-level error.
	OracleReplyFailure OracleReplyKind = "failure"
)

// PartialDecision holds the decision fields an oracle reply actually carried
// with the correct type. Pointer fields are nil when absent or ill-typed;
// the coercion layer never assumes presence.
type PartialDecision struct {
	NeedsFollowup *bool
	EndCall       *bool
	NextQuestion  *string

	TriageLevel       *string
	Rationale         *string
	RecommendedAction *string
	Confidence        *float64

	MatchedComplications []string
	ReportedSymptoms     []string
}

// HasControlField reports whether any of the three control fields
// (needs_followup, end_call, next_question) survived type checking. A reply
// with none of them is treated as fully invalid.
func (p PartialDecision) HasControlField() bool {
	return p.NeedsFollowup != nil || p.EndCall != nil || p.NextQuestion != nil
}

// OracleReply is the tagged result of one oracle query. The decision coercion
// layer pattern-matches over Kind and treats Fields as untrusted input.
type OracleReply struct {
	Kind   OracleReplyKind
	Fields PartialDecision
	Raw    string
	Err    error
}

// OracleFailure builds a failure reply from a transport or timeout error.
func OracleFailure(err error) OracleReply {
	return OracleReply{Kind: OracleReplyFailure, Err: err}
}

// OracleMalformed builds a malformed reply preserving the raw text for logging.
func OracleMalformed(raw string) OracleReply {
	return OracleReply{Kind: OracleReplyMalformed, Raw: raw}
}
