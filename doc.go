// Package storkit provides a unified data access layer for storage services:
// one typed API over object stores, local filesystems, key-value stores and
// in-memory backends, with composable layers for retries, logging, metrics,
// rate limiting and caching.
//
// The three central types are [Operator], [Layer] and [Capability]. An
// Operator is the public facade: it validates inputs, consults the backend's
// declared capability before any I/O, dispatches through the layer chain and
// returns normalized results and errors. Layers wrap the underlying
// [Accessor] to add behavior without changing operation semantics.
// Capabilities make backend differences explicit: an unsupported operation
// fails fast with [KindUnsupported] instead of producing a backend-specific
// surprise.
//
// # Storage Backends
//
//   - In-memory (github.com/gobeaver/storkit/driver/memory)
//   - Local filesystem (github.com/gobeaver/storkit/driver/fs)
//   - Amazon S3 and compatibles (github.com/gobeaver/storkit/driver/s3)
//   - Badger key-value store (github.com/gobeaver/storkit/driver/badgerkv)
//
// Importing a driver package registers its scheme, so backends can also be
// opened by name through [Open] or [OpenFromEnv].
//
// # Basic Usage
//
//	import (
//	    "github.com/gobeaver/storkit"
//	    "github.com/gobeaver/storkit/driver/memory"
//	)
//
//	op := storkit.New(memory.New())
//	ctx := context.Background()
//
//	// Write and read back
//	_, err := op.Write(ctx, "hello.txt", []byte("Hello, World!"))
//	data, err := op.Read(ctx, "hello.txt")
//
//	// Metadata without content
//	meta, err := op.Stat(ctx, "hello.txt")
//
//	// Paginated listing
//	lister, err := op.List(ctx, "logs/", storkit.WithRecursive(true))
//	for {
//	    entry, err := lister.Next(ctx)
//	    if err != nil || entry == nil {
//	        break
//	    }
//	    fmt.Println(entry.Path)
//	}
//
// # Layers
//
// Layers compose explicitly; the first layer passed to [New] sits closest
// to the backend and the last sees calls first:
//
//	op := storkit.New(accessor,
//	    storkit.RetryLayer{MaxAttempts: 5},
//	    storkit.MetaCacheLayer{TTL: time.Minute},
//	    storkit.LoggingLayer{},
//	)
//
// # Error Handling
//
// Every failure carries a normalized [Kind] alongside the operation and
// path, regardless of which backend produced it:
//
//	_, err := op.Read(ctx, "missing.txt")
//	if storkit.IsNotFound(err) {
//	    // handle absence
//	}
//
//	var serr *storkit.Error
//	if errors.As(err, &serr) {
//	    fmt.Printf("op=%s path=%s kind=%s\n", serr.Op, serr.Path, serr.Kind)
//	}
//
// # Configuration
//
// Backends can be configured via environment variables with the STORKIT_
// prefix and opened with [OpenFromEnv], or programmatically through the
// driver constructors and [Open].
package storkit
