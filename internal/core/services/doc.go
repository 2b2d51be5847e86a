// Package services implements the core use cases: profile-driven embedding,
// differential document ingestion and similarity search. Services depend
// only on domain types and ports; adapters are injected at construction.
package services
