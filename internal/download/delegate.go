package download

import "net/http"

// Delegate supplies the application side of a Session: it builds requests
// for represented objects and receives the outcome of every transfer.
//
// All methods are invoked off the session's internal lock, so a delegate
// may call back into the Session (for example to submit a follow-up batch
// from DidFinishBatch). Methods are called from the session's worker
// goroutines; implementations that touch shared state must synchronize.
//
// Per object, at most one of DidReceiveNotModified,
// DidReceiveUnexpectedResponse, or DidCompleteDownload is invoked.
type Delegate[T comparable] interface {
	// RequestForObject returns the outgoing request for obj, or nil to
	// drop the object. A dropped object gets no further callbacks; it is
	// simply not fetched this batch.
	RequestForObject(obj T) *http.Request

	// DidReceiveNotModified is called when the server answers 304. The
	// transfer is aborted before the body is read.
	DidReceiveNotModified(obj T, resp *http.Response)

	// DidReceiveUnexpectedResponse is called for status codes outside
	// the 2xx/3xx range. The transfer is aborted before the body is read.
	DidReceiveUnexpectedResponse(obj T, resp *http.Response)

	// ShouldContinueDownload is called after each received chunk with
	// the body accumulated so far. Returning false aborts the transfer
	// silently: no completion callback follows.
	ShouldContinueDownload(obj T, body []byte) bool

	// DidCompleteDownload delivers the final outcome of a transfer: the
	// response (nil on transport failure before headers), the full body,
	// and the transport error if any. The delegate must invoke done —
	// possibly later, from another goroutine — once its own handling is
	// finished; the session keeps the transfer's slot occupied and holds
	// the batch open until then. done is safe to call more than once.
	DidCompleteDownload(obj T, resp *http.Response, body []byte, err error, done func())

	// DidDiscardDuplicate is called when a submitted object is already
	// tracked by the current batch. The earlier submission proceeds
	// untouched.
	DidDiscardDuplicate(obj T)

	// DidFinishBatch is called each time the session drains: no
	// transfers in flight, none pending. The set of tracked objects is
	// cleared immediately before the call, so resubmitting an object
	// from this callback starts a fresh fetch.
	DidFinishBatch()
}
