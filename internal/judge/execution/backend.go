package execution

import "context"

// Backend opens one execution stream per submission.
type Backend interface {
	// Execute sends req and returns the result stream. An error here means
	// nothing reached the backend.
	Execute(ctx context.Context, req *Request) (ResultStream, error)
}

// ResultStream yields results until io.EOF on normal completion.
// Cancelling the context passed to Execute releases the stream.
type ResultStream interface {
	Recv() (*Result, error)
}

// Executor is the server side of the protocol: it runs req and calls send once per result.
type Executor interface {
	Execute(ctx context.Context, req *Request, send func(*Result) error) error
}
