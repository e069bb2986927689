package wal

import "errors"

// Sentinel errors for the State kind in the spec's error taxonomy (§7):
// torn-write vs unrecoverable corruption, version mismatch, URL mismatch.
var (
	ErrStateCorrupt    = errors.New("state: corrupt snapshot")
	ErrVersionMismatch = errors.New("state: version mismatch")
	ErrURLMismatch     = errors.New("state: url mismatch on resume")
	ErrTornWrite       = errors.New("state: torn write in wal")
	ErrSeqGap          = errors.New("state: wal sequence gap")
)
