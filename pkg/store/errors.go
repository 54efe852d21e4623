package store

import "fmt"

// StoreError is a small tagged error carrying the CID and host (when
// relevant) a store operation failed on, in the shape of
// pkg/drive.DriveError / pkg/content.ContentError (§7 "Store errors").
type StoreError struct {
	Code    string
	Message string
	Cid     string
	Host    string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("store: %s: %s (cid %s, host %s)", e.Code, e.Message, e.Cid, e.Host)
	}
	if e.Cid != "" {
		return fmt.Sprintf("store: %s: %s (cid %s)", e.Code, e.Message, e.Cid)
	}
	return fmt.Sprintf("store: %s: %s", e.Code, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Cause }

const (
	CodeNotFound            = "NOT_FOUND"
	CodeNoSyncRemote        = "NO_SYNC_REMOTE"
	CodeAuthorizationFailed = "AUTHORIZATION_FAILED"
	CodeAllHostsFailed      = "ALL_HOSTS_FAILED"
)

func NewNotFoundError(cid string) *StoreError {
	return &StoreError{Code: CodeNotFound, Message: "block not found", Cid: cid}
}

func NewNoSyncRemoteError() *StoreError {
	return &StoreError{Code: CodeNoSyncRemote, Message: "no sync remote configured"}
}

func NewAuthorizationFailedError(host string, cause error) *StoreError {
	return &StoreError{Code: CodeAuthorizationFailed, Message: "storage host rejected authorization", Host: host, Cause: cause}
}

func NewAllHostsFailedError(cid string) *StoreError {
	return &StoreError{Code: CodeAllHostsFailed, Message: "every candidate host failed to serve this block", Cid: cid}
}
