// Package chemvec is an embedded molecular similarity search engine.
//
// Molecules enter as SMILES strings and are canonicalized, so equivalent
// notations of the same molecule share one catalog entry. An external
// Matryoshka-trained model turns each canonical form into a unit-normalized
// embedding, whose re-normalized prefixes remain valid embeddings at every
// supported shorter length. The engine maintains one HNSW index per length,
// letting callers trade accuracy against speed per query.
//
//	engine, err := chemvec.New(provider)
//	if err != nil { ... }
//	id, err := engine.UpsertMolecule(ctx, "OCC")
//	matches, err := engine.FindSimilar(ctx, "CCO", 128, 10)
//
// Index rebuilds are copy-on-build: a fresh graph is constructed off to the
// side and swapped in atomically, so searches are never blocked by builds.
package chemvec
