// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides muxwire's CBOR encoding configuration.
//
// Structured imsg payloads (identify, command and exit messages
// between the attach client and the server) are CBOR. The encoder uses
// Core Deterministic Encoding, so the same value always produces the
// same bytes, and the decoder ignores unknown fields.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Payload types carry `cbor` struct tags. [Diagnose] renders a payload
// in diagnostic notation for logging a message nobody expected.
package codec
