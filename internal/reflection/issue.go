package reflection

type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityAdvisory Severity = "advisory"
)

// Issue is a single reflection finding. Issues are immutable once produced;
// the workflow controller folds blocking ones into regeneration feedback.
type Issue struct {
	CheckID  string
	Message  string
	Severity Severity
}

// HasBlocking reports whether any issue would force a regeneration.
func HasBlocking(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}
