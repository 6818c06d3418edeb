package transfer

// InputError reports invalid user input: a malformed object reference, an
// unknown metadata field or a compliance-mode misuse. It is always
// surfaced before any remote or filesystem side effect.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return e.Reason
}
