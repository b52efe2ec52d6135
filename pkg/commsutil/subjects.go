package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	// SubjectCallback receives gateway callbacks relayed over COMMS.
	SubjectCallback = "scip.client.callback"
	// SubjectOperationEvent receives every operation lifecycle event.
	SubjectOperationEvent = "scip.client.ops"
)

// BuildOperationSubject builds a granular lifecycle subject, e.g. "scip.client.ops.invoke.completed".
func BuildOperationSubject(base, operation, phase string) string {
	return fmt.Sprintf("%s.%s.%s", base, SubjectToken(operation), SubjectToken(phase))
}

// SubjectToken makes s safe to use as a single subject token.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
