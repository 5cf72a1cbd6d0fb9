package engine

import "fmt"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type IssueCode string

const (
	CodeRequired               IssueCode = "REQUIRED"
	CodeRange                  IssueCode = "RANGE"
	CodePattern                IssueCode = "PATTERN"
	CodeTotalMismatch          IssueCode = "TOTAL_MISMATCH"
	CodePairedFieldMissing     IssueCode = "PAIRED_FIELD_MISSING"
	CodeSignatureSetIncomplete IssueCode = "SIGNATURE_SET_INCOMPLETE"
)

// Issue is one validation finding, attached to the specific field the user
// should act on. Produced fresh on every pass; never persisted.
type Issue struct {
	FieldID  string    `json:"field_id"`
	Severity Severity  `json:"severity"`
	Code     IssueCode `json:"code"`
	Message  string    `json:"message"`
}

// RowFieldID addresses one cell of a repeatable row for issue attachment.
func RowFieldID(groupID, rowID, column string) string {
	return fmt.Sprintf("%s.%s.%s", groupID, rowID, column)
}

// HasErrors reports whether any issue in the list is error severity;
// warnings alone never block a transition.
func HasErrors(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}
