package waf

import "errors"

// ErrInvalidPattern means a rule's pattern did not compile. The rule store
// rejects such rules before activation so they never reach evaluation.
var ErrInvalidPattern = errors.New("rule pattern does not compile")

// ErrUnknownRule means the given rule ID is not in the store.
var ErrUnknownRule = errors.New("unknown rule ID")

// ErrLookupTimeout means an external geo or threat feed lookup exceeded its
// time budget. The pipeline fails open on this error.
var ErrLookupTimeout = errors.New("external lookup exceeded its time budget")

// ErrQueueFull means the aggregation queue was full and a verdict was dropped
// from the stats pipeline. The blocking decision itself is unaffected.
var ErrQueueFull = errors.New("aggregation queue full")
