// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package proxy provides credential isolation for sandboxed agent
// processes calling a remote inference API.
//
// The sandbox never holds the real API key. Instead, each sandbox is
// assigned an opaque identity token at creation and configures its SDK
// to send that token in the usual credential header, pointed at the
// proxy's address. The proxy strips the identity header, substitutes
// the real credential from a [CredentialSource], and forwards the
// request to the fixed upstream — streaming the response back chunk by
// chunk so server-sent-event token deltas reach the sandbox as they
// arrive, with no full-response buffering.
//
// The identity token is a capability, not a credential: the proxy is
// reachable only from inside the isolated network namespace, so any
// caller that can present the header is trusted by topology. A request
// without the header is rejected before anything is forwarded.
//
// Credential sources form a chain: environment variables, key=value
// files, in-memory maps, and a CBOR payload piped to stdin at startup
// (the production delivery path — the launcher decrypts the bundle and
// writes it to the proxy process's stdin, so the key never appears in
// the environment or on the filesystem). All values are held in
// mmap-backed [secret.Buffer] memory, locked against swap and excluded
// from core dumps.
package proxy
