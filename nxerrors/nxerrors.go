// Package nxerrors provides error handling for nexxt-go.
//
// It re-exports github.com/cockroachdb/errors for stack traces, wrapping,
// and PII-safe hints, and defines the sentinel error kinds used across the
// engine (state machine, configuration, plugin, property, concurrency).
//
// Usage:
//
//	if err := f.onInit(); err != nil {
//	    return nxerrors.Wrap(err, "onInit failed")
//	}
//
//	if nxerrors.Is(err, nxerrors.ErrPossibleDeadlock) {
//	    // revert to prior state
//	}
package nxerrors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping.
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details.
var (
	WithHint        = crdb.WithHint
	WithHintf       = crdb.WithHintf
	WithDetail      = crdb.WithDetail
	WithSafeDetails = crdb.WithSafeDetails
)

// Error inspection.
var (
	Is     = crdb.Is
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Sentinel error kinds, one per contract-level failure category.
// Callers wrap these with nxerrors.Wrap/Wrapf to attach context while
// keeping the kind checkable with nxerrors.Is.
var (
	// Configuration errors
	ErrNodeNotFound       = crdb.New("node not found")
	ErrNodeExists         = crdb.New("node already exists")
	ErrPortNotFound       = crdb.New("port not found")
	ErrPortExists         = crdb.New("port already exists")
	ErrConnectionExists   = crdb.New("connection already exists")
	ErrConnectionNotFound = crdb.New("connection not found")
	ErrInvalidIdentifier  = crdb.New("invalid identifier")
	ErrCompositeRecursion = crdb.New("composite recursion")
	ErrNodeProtected      = crdb.New("node is protected")

	// State machine errors
	ErrFilterStateMachine = crdb.New("invalid filter state transition")
	ErrUnexpectedState    = crdb.New("unexpected application state")

	// Dynamic port errors
	ErrDynamicPortUnsupported = crdb.New("dynamic ports not supported by filter")
	ErrDynamicPortState       = crdb.New("dynamic port cannot be added in current state")

	// Plugin errors
	ErrPluginScheme        = crdb.New("unknown plugin URL scheme")
	ErrPluginFactoryUnknown = crdb.New("plugin factory not found")
	ErrPluginLoadFailed    = crdb.New("plugin failed to load")
	ErrPluginVersion       = crdb.New("plugin version incompatible")

	// Property errors
	ErrPropertyRedefinition = crdb.New("inconsistent property redefinition")
	ErrPropertyUnknownType  = crdb.New("unknown property type")
	ErrPropertyParse        = crdb.New("property parse error")
	ErrPropertyNotFound     = crdb.New("property not defined")
	ErrCollectionNotFound   = crdb.New("child collection not found")
	ErrCollectionExists     = crdb.New("child collection already exists")

	// Concurrency errors
	ErrPossibleDeadlock = crdb.New("possible deadlock")
	ErrWrongThread      = crdb.New("called from wrong thread")

	// Internal
	ErrInternal = crdb.New("internal invariant violated")
)
