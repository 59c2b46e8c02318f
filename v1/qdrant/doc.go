// Package qdrant is an alternative product index for semantic receipt
// search, backed by the official Qdrant Go client.
//
// Products are stored one point per SKU in a cosine-distance collection.
// Point ids are UUIDv5 values derived from the SKU, so re-indexing a
// product overwrites its previous vector. Nearest applies the similarity
// threshold server side through ScoreThreshold.
//
// By default semantic lookups use pgvector in the receipt store; set
// QDRANT_ENABLED to route them here instead.
package qdrant
