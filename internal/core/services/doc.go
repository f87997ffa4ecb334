// Package services holds the core use cases: model resolution, the
// embedder, the retrieval pipeline, question answering and settings.
//
// Services depend only on ports; adapters are injected by internal/app.
package services
