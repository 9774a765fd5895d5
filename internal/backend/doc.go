// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

// Package backend decides where the state document's bytes live. The local
// backend is a YAML file on disk. An S3 backend may be layered behind it as a
// mirror so the document survives the workstation that created it. With a
// passphrase the mirrored copy is sealed with AES-GCM under a PBKDF2 key.
package backend
