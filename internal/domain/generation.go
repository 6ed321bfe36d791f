package domain

import "context"

// Generator is the text-generation backend contract. Generate starts a
// completion and returns a stream of incremental output chunks.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (ChunkStream, error)
}

// ChunkStream yields generated text incrementally. Recv returns io.EOF
// when the backend signals end-of-output.
type ChunkStream interface {
	Recv() (string, error)
	Close() error
}
