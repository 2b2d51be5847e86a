// Package domain contains the core business entities for document ingestion
// and similarity search: chunks, embeddings, metadata schemas, embedding
// profiles, ingest results and the error taxonomy.
//
// Domain types have no dependencies on infrastructure. Adapters translate
// between these types and their external representations.
package domain
