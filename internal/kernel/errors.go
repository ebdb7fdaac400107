package kernel

import "errors"

// ErrUnknownID is returned by Acknowledge when the id is not present in the
// in-flight table: either it was never delivered, it was already
// acknowledged, or it was requeued after a session drop.
var ErrUnknownID = errors.New("kernel: unknown message id")

// ErrWaiterCancelled is delivered to a blocking Pop caller whose waiter was
// removed by session cancellation before a match arrived.
var ErrWaiterCancelled = errors.New("kernel: waiter cancelled")
