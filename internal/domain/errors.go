// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a request failed domain validation.
var ErrValidation = errors.New("validation failed")

// ErrScheduleConflict indicates a candidate run overlaps an existing
// commitment for the same driver.
var ErrScheduleConflict = errors.New("schedule conflict")

// ErrInvalidTransition indicates a run status change that the lifecycle
// state machine does not permit.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrRouteOptimization indicates the upstream routing provider failed or
// timed out while computing a route.
var ErrRouteOptimization = errors.New("route optimization failed")

// ErrTrafficLookup indicates the upstream routing provider failed or timed
// out while fetching traffic conditions.
var ErrTrafficLookup = errors.New("traffic lookup failed")

// ErrNotConnected indicates the message queue was used before Connect
// completed or after Close.
var ErrNotConnected = errors.New("message queue not connected")
