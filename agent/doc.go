// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the in-sandbox conversational client.
//
// A [Session] holds the conversation history and drives the model
// through the credential proxy: the SDK is configured with the sandbox
// identity token as its API key and the proxy's address as its base
// URL, so the real credential never enters the sandbox. Each turn
// streams the model response, executes any requested local tools, and
// feeds the results back until the model stops asking for tools.
package agent
