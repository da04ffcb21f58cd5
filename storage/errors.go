package storage

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of storage errors
type ErrorCode int

const (
	// Generic errors
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInternal
	ErrCodeInvalidArgument

	// Replacer errors
	ErrCodeInvalidFrame
	ErrCodeFrameNotEvictable

	// Page errors
	ErrCodePageNotFound
	ErrCodeInvalidPageID
	ErrCodePageCorrupted

	// Buffer pool errors
	ErrCodeNoFreeFrames
	ErrCodePagePinned
	ErrCodeInvalidPin

	// Disk errors
	ErrCodeDiskReadFailed
	ErrCodeDiskWriteFailed
)

var errorCodeNames = [...]string{
	ErrCodeUnknown:           "unknown",
	ErrCodeInternal:          "internal",
	ErrCodeInvalidArgument:   "invalid argument",
	ErrCodeInvalidFrame:      "invalid frame",
	ErrCodeFrameNotEvictable: "frame not evictable",
	ErrCodePageNotFound:      "page not found",
	ErrCodeInvalidPageID:     "invalid page id",
	ErrCodePageCorrupted:     "page corrupted",
	ErrCodeNoFreeFrames:      "no free frames",
	ErrCodePagePinned:        "page pinned",
	ErrCodeInvalidPin:        "invalid pin",
	ErrCodeDiskReadFailed:    "disk read failed",
	ErrCodeDiskWriteFailed:   "disk write failed",
}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(errorCodeNames) {
		return errorCodeNames[ErrCodeUnknown]
	}
	return errorCodeNames[c]
}

// StorageError represents a storage engine error with context
type StorageError struct {
	Code    ErrorCode
	Message string
	Op      string // Operation that failed
	Err     error  // Underlying error (if any)
}

// Error implements the error interface
func (e *StorageError) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a StorageError with the same code
func (e *StorageError) Is(target error) bool {
	if t, ok := target.(*StorageError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewStorageError creates a new storage error
func NewStorageError(code ErrorCode, op, message string, err error) *StorageError {
	return &StorageError{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

// Constructors for the codes the replacers and buffer pool return

func ErrInvalidFrame(op string, frameID FrameID, capacity int) *StorageError {
	return NewStorageError(ErrCodeInvalidFrame, op, fmt.Sprintf("frame %d out of range [0, %d)", frameID, capacity), nil)
}

func ErrFrameNotEvictable(op string, frameID FrameID) *StorageError {
	return NewStorageError(ErrCodeFrameNotEvictable, op, fmt.Sprintf("frame %d is not evictable", frameID), nil)
}

func ErrInvalidArgument(op, message string) *StorageError {
	return NewStorageError(ErrCodeInvalidArgument, op, message, nil)
}

func ErrPageNotFound(op string, pageID PageID) *StorageError {
	return NewStorageError(ErrCodePageNotFound, op, fmt.Sprintf("page %d not found", pageID), nil)
}

func ErrNoFreeFrames(op string) *StorageError {
	return NewStorageError(ErrCodeNoFreeFrames, op, "every frame is pinned", nil)
}

func ErrPagePinned(op string, pageID PageID, pinCount int32) *StorageError {
	return NewStorageError(ErrCodePagePinned, op, fmt.Sprintf("page %d has %d pins", pageID, pinCount), nil)
}

func ErrInvalidPin(op string, pageID PageID) *StorageError {
	return NewStorageError(ErrCodeInvalidPin, op, fmt.Sprintf("page %d has no pins to release", pageID), nil)
}

func ErrPageCorrupted(op string, pageID PageID, err error) *StorageError {
	return NewStorageError(ErrCodePageCorrupted, op, fmt.Sprintf("page %d failed verification", pageID), err)
}

func ErrDiskRead(op string, err error) *StorageError {
	return NewStorageError(ErrCodeDiskReadFailed, op, "read failed", err)
}

func ErrDiskWrite(op string, err error) *StorageError {
	return NewStorageError(ErrCodeDiskWriteFailed, op, "write failed", err)
}

// IsErrorCode checks if an error, or any error it wraps, has a specific code
func IsErrorCode(err error, code ErrorCode) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrCodeUnknown
func GetErrorCode(err error) ErrorCode {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeUnknown
}
