// Package rag defines the shared types of the retrieval-augmented generation
// pipeline: chunks and their section labels, the structured query produced
// from a question, the per-request pipeline State, and the collaborator
// interfaces (Embedder, VectorStore, Loader) the pipeline depends on.
//
// The stages themselves live in sub-packages:
//
//   - rag/loader: web, markdown and text document loaders
//   - rag/splitter: chunking and section tagging
//   - rag/store: vector store backends (memory, PostgreSQL/pgvector, Redis)
//   - rag/ingest: reset, load, split, tag, embed and upsert a source
//   - rag/analyzer: question to StructuredQuery via the language model
//   - rag/retriever: section-filtered similarity search
//   - rag/generator: prompt assembly, blocking and streaming generation
//   - rag/engine: the analyze_query, retrieve, generate graph
//
// # Sections
//
// Every stored chunk carries a "section" metadata label assigned from its
// ordinal position: with n chunks and third = n/3, the first third is
// "beginning", the second "middle" and the rest "end". SectionFor implements
// the rule; ParseSection validates labels coming back from the model.
package rag
