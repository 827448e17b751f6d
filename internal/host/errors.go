// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package host

import "errors"

var (
	ErrInvalidBatch = errors.New("invalid batch message")

	ErrNoShape = errors.New("no shape registered")

	ErrPointerNotFound = errors.New("pointer does not resolve")

	ErrSinkFailed = errors.New("result sink failed")
)
