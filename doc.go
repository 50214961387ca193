// Ragchat - question answering over a document with retrieval-augmented generation
//
// Ragchat answers questions about one ingested source (by default a long blog
// post) as "Pal", a friendly university assistant. A question flows through a
// three stage graph:
//
//	analyze_query -> retrieve -> generate
//
// analyze_query asks the model to rewrite the question into a search string
// and, optionally, the part of the document (beginning, middle or end) the
// answer is likely in. retrieve embeds the search string and runs a similarity
// search restricted to that section. generate assembles the Pal prompt from
// the retrieved chunks and calls the model, either blocking or streaming.
//
// # Quick Start
//
// Configure a provider token and ingest the default source:
//
//	export HUGGINGFACE_TOKEN=hf_...
//	ragchat ingest
//
// Ask from the terminal:
//
//	ragchat ask "What are the components of an agent?"
//
// Or run the HTTP service:
//
//	ragchat serve
//	curl -d '{"content":"What is task decomposition?"}' localhost:8000/query
//
// # Packages
//
//   - rag: chunks, sections, structured queries and pipeline state
//   - rag/loader, rag/splitter, rag/ingest: document ingestion
//   - rag/store: vector stores (memory, PostgreSQL/pgvector, Redis)
//   - rag/analyzer, rag/retriever, rag/generator: the three stages
//   - rag/engine: the stage graph, built on package graph
//   - llms/huggingface: Hugging Face inference client for llms.Model
//   - store: exchange history (memory, SQLite, Redis, PostgreSQL)
//   - server: the gin HTTP surface
//   - config: YAML, .env and environment configuration
//   - log: leveled logging with a golog backend
//
// # Using the engine directly
//
//	llm, _ := huggingface.New(huggingface.WithToken(token))
//	embedder, _ := embeddings.NewEmbedder(llm)
//	vectors := store.NewMemoryStore()
//
//	ing, _ := ingest.New(embedder, vectors)
//	_, _ = ing.Ingest(ctx, config.DefaultSourceURL)
//
//	eng, _ := engine.New(
//		analyzer.New(llm),
//		retriever.New(embedder, vectors),
//		generator.New(llm),
//	)
//	state, err := eng.Answer(ctx, "What does the middle of the post say about memory?")
//
// Sections are assigned positionally at ingestion time: with n chunks and
// third = n/3, chunks before third are "beginning", chunks before 2*third are
// "middle" and the rest are "end".
package ragchat // import "github.com/smallnest/ragchat"
