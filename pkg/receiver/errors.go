package receiver

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// The tracker's driver/receiver protocol is in-process (an inbox channel,
// not a wire RPC), but its failure vocabulary is expressed with
// grpc/codes+status so a future gRPC-fronted receiver (a receiver process
// running outside the driver) can surface the same error semantics without
// inventing a parallel enum.
var (
	// ErrUnknownStream is returned when RegisterReceiver names a stream id
	// the tracker was not configured with.
	ErrUnknownStream = status.New(codes.NotFound, "receiver: unknown stream id").Err()
	// ErrReceiverNotActive is returned when AddBlock is attempted for a
	// receiver that never registered or already terminated.
	ErrReceiverNotActive = status.New(codes.FailedPrecondition, "receiver: not registered or already terminated").Err()
	// ErrWALUnavailable is returned when a durable block report could not
	// be appended to the metadata WAL.
	ErrWALUnavailable = status.New(codes.Unavailable, "receiver: metadata wal append failed").Err()
)
