package resolver

// UnresolvedBuildError signals that the caller must stop because one or more
// requested builds cannot be resolved right now. It is an expected stopping
// condition, not necessarily a bug: waiting for freshly triggered try jobs to
// finish also surfaces as this error.
type UnresolvedBuildError struct {
	Reason string
}

func (e *UnresolvedBuildError) Error() string {
	return e.Reason
}
