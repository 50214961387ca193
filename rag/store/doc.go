// Package store provides rag.VectorStore implementations.
//
//   - MemoryStore keeps everything in process; used by tests and local runs.
//   - PGVectorStore keeps one PostgreSQL table per collection using the
//     pgvector extension and ranks by cosine distance in SQL.
//   - RedisStore keeps chunks as JSON values in Redis and ranks in process.
//
// All stores rank by cosine similarity, apply metadata filters before
// ranking, and return at most k chunks with Score set.
package store
