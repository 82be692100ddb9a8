// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog provides the registry of named, typed datasets that nodes
// read from and write to.
//
// A Catalog maps logical keys to Entry values. Each Entry knows its element
// type (a TypeTag) and how to load and save a whole collection, but nothing
// about how the data is shaped or stored. Storage collaborators (in-memory,
// badger, files) implement Entry; the kernel only ever calls Load and Save.
//
// # Atomic Saves
//
// Save replaces the stored collection atomically from the caller's point of
// view: a Load that runs concurrently with or after a Save observes either
// the previous collection or the new one, never a mix. MemoryEntry achieves
// this with an atomic pointer swap; other collaborators buffer internally.
//
// # Thread Safety
//
// Catalog is safe for concurrent use. Entries must be safe for concurrent
// Load calls; the pipeline builder guarantees a single writer per key.
package catalog
