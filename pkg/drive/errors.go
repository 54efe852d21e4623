package drive

import "fmt"

// DriveError is the tagged enumeration of operation errors a caller can
// see from a drive or directory operation (§6, §7). Code identifies the
// kind programmatically; Message is human-readable; Path/Slot/Reason
// carry whichever context applies to that Code.
type DriveError struct {
	Code    string
	Message string
	Path    []string
	Slot    int
	Reason  string
	Cause   error
}

func (e *DriveError) Error() string {
	if e.Path != nil {
		return fmt.Sprintf("drive: %s: %s (path %v)", e.Code, e.Message, e.Path)
	}
	if e.Code == CodeInternalCorruption {
		return fmt.Sprintf("drive: %s: %s (slot %d: %s)", e.Code, e.Message, e.Slot, e.Reason)
	}
	return fmt.Sprintf("drive: %s: %s", e.Code, e.Message)
}

func (e *DriveError) Unwrap() error { return e.Cause }

// Error codes, matching §6's "Errors surfaced to callers" list.
const (
	CodePathNotFound             = "PATH_NOT_FOUND"
	CodeNotADirectory             = "NOT_A_DIRECTORY"
	CodeExists                    = "EXISTS"
	CodeParentMustBeDirectory     = "PARENT_MUST_BE_DIRECTORY"
	CodeNameIsEmpty               = "NAME_IS_EMPTY"
	CodePathComponentTooLong      = "PATH_COMPONENT_TOO_LONG"
	CodeReservedDirectoryTraversal = "RESERVED_DIRECTORY_TRAVERSAL"
	CodeTooLong                   = "TOO_LONG"
	CodeAccessUnavailable         = "ACCESS_UNAVAILABLE"
	CodeIncorrectKey              = "INCORRECT_KEY"
	CodeInternalCorruption        = "INTERNAL_CORRUPTION"
)

func NewPathNotFoundError(path []string) *DriveError {
	return &DriveError{Code: CodePathNotFound, Message: "path does not resolve to a node", Path: path}
}

func NewNotADirectoryError(path []string) *DriveError {
	return &DriveError{Code: CodeNotADirectory, Message: "path component is not a directory", Path: path}
}

func NewExistsError(path []string) *DriveError {
	return &DriveError{Code: CodeExists, Message: "a node already exists at this path", Path: path}
}

func NewParentMustBeDirectoryError(path []string) *DriveError {
	return &DriveError{Code: CodeParentMustBeDirectory, Message: "parent path component is not a directory", Path: path}
}

func NewNameIsEmptyError(path []string) *DriveError {
	return &DriveError{Code: CodeNameIsEmpty, Message: "path component name is empty", Path: path}
}

func NewPathComponentTooLongError(path []string) *DriveError {
	return &DriveError{Code: CodePathComponentTooLong, Message: "path component exceeds the maximum name length", Path: path}
}

func NewReservedDirectoryTraversalError(path []string) *DriveError {
	return &DriveError{Code: CodeReservedDirectoryTraversal, Message: "path component is a reserved traversal name", Path: path}
}

func NewTooLongError(path []string, n int) *DriveError {
	return &DriveError{Code: CodeTooLong, Message: fmt.Sprintf("path component is %d bytes", n), Path: path}
}

func NewAccessUnavailableError(cause error) *DriveError {
	return &DriveError{Code: CodeAccessUnavailable, Message: "no escrow record unlocks with this signing key", Cause: cause}
}

func NewIncorrectKeyError(cause error) *DriveError {
	return &DriveError{Code: CodeIncorrectKey, Message: "key unwrap failed", Cause: cause}
}

func NewInternalCorruptionError(slot int, reason string) *DriveError {
	return &DriveError{Code: CodeInternalCorruption, Message: "internal consistency check failed", Slot: slot, Reason: reason}
}
