// Package wire defines the request/response shapes that cross a session
// boundary and the framing/codec used to carry them over a stream
// transport. It has no knowledge of the kernel or of sessions: it only
// knows how to turn bytes into typed requests and typed responses into
// bytes.
package wire

// Priority mirrors the wire-level priority enum. It is translated to and
// from kernel.Priority at the session boundary rather than shared directly,
// so the wire shape stays pinned to the protocol table regardless of how
// the kernel's own type evolves.
type Priority int32

const (
	PriorityLow  Priority = 0
	PriorityHigh Priority = 1
)

// RequestType discriminates which field of RequestWrapper is populated.
type RequestType string

const (
	RequestAuthenticate RequestType = "authenticate"
	RequestEnqueue      RequestType = "enqueue"
	RequestPop          RequestType = "pop"
	RequestAcknowledge  RequestType = "acknowledge"
	// RequestSubscribe is a websocket-gateway extension: the raw stream
	// transport exposes only the four request types above, since the
	// protocol table does not name Subscribe as a request/response pair.
	// Over a websocket connection a client can instead register a
	// streaming subscription and receive DeliveryPush messages until it
	// closes or max_count deliveries are exhausted.
	RequestSubscribe RequestType = "subscribe"
)

// ResponseType discriminates which field of ResponseWrapper is populated.
type ResponseType string

const (
	ResponseAuthenticate ResponseType = "authenticate"
	ResponseEnqueue      ResponseType = "enqueue"
	ResponsePop          ResponseType = "pop"
	ResponseAcknowledge  ResponseType = "acknowledge"
	ResponseError        ResponseType = "error"
	// ResponseSubscribe acknowledges a subscribe request's registration;
	// the deliveries themselves arrive as DeliveryPush messages.
	ResponseSubscribe ResponseType = "subscribe"
)

// RequestWrapper is the outer envelope for every client-to-broker message.
// RefID is opaque to the broker: it is copied verbatim onto the matching
// ResponseWrapper so a client can correlate concurrent in-flight requests
// on a single connection.
type RequestWrapper struct {
	RefID        int32                `json:"refId"`
	Type         RequestType          `json:"type"`
	Authenticate *AuthenticateRequest `json:"authenticate,omitempty"`
	Enqueue      *EnqueueRequest      `json:"enqueue,omitempty"`
	Pop          *PopRequest          `json:"pop,omitempty"`
	Acknowledge  *AcknowledgeRequest  `json:"acknowledge,omitempty"`
	Subscribe    *SubscribeRequest    `json:"subscribe,omitempty"`
}

// ResponseWrapper is the outer envelope for every broker-to-client message.
type ResponseWrapper struct {
	RefID        int32                 `json:"refId"`
	Type         ResponseType          `json:"type"`
	Authenticate *AuthenticateResponse `json:"authenticate,omitempty"`
	Enqueue      *EnqueueResponse      `json:"enqueue,omitempty"`
	Pop          *PopResponse          `json:"pop,omitempty"`
	Acknowledge  *AcknowledgeResponse  `json:"acknowledge,omitempty"`
	Error        *ErrorResponse        `json:"error,omitempty"`
	Subscribe    *SubscribeResponse    `json:"subscribe,omitempty"`
}

// AuthenticateRequest carries the shared credential.
type AuthenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// EnqueueRequest admits a new message.
type EnqueueRequest struct {
	Payload              []byte   `json:"payload"`
	Priority             Priority `json:"priority"`
	RequiredCapabilities []string `json:"requiredCapabilities,omitempty"`
}

// PopRequest asks for the next matching message.
type PopRequest struct {
	AvailableCapabilities []string `json:"availableCapabilities,omitempty"`
	WaitForMessage        bool     `json:"waitForMessage"`
}

// AcknowledgeRequest confirms processing of a delivered message.
type AcknowledgeRequest struct {
	ID string `json:"id"`
}

// SubscribeRequest registers a streaming waiter, websocket-transport only.
type SubscribeRequest struct {
	AvailableCapabilities []string `json:"availableCapabilities,omitempty"`
	MaxCount              int32    `json:"maxCount"`
}

// AuthenticateResponse reports whether the credential was accepted.
type AuthenticateResponse struct {
	Success bool `json:"success"`
}

// EnqueueResponse carries the id assigned to a newly admitted message.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// PopResponse carries the result of a pop. Payload and ID are unset when
// HadResult is false.
type PopResponse struct {
	HadResult bool   `json:"hadResult"`
	ID        string `json:"id,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
}

// AcknowledgeResponse has no fields; its presence on the wrapper is the
// signal that the acknowledge succeeded.
type AcknowledgeResponse struct{}

// ErrorResponse surfaces unauthenticated, unknown_id and protocol errors.
type ErrorResponse struct {
	Message string `json:"message"`
}

// SubscribeResponse acknowledges subscription registration.
type SubscribeResponse struct{}

// DeliveryPush is an unsolicited, websocket-transport-only message: the
// broker pushes it whenever a subscribe waiter is matched. SubscriptionRefID
// echoes the refId of the SubscribeRequest that registered the waiter so a
// client multiplexing several subscriptions on one connection can tell them
// apart. Acknowledge for a pushed delivery is a normal AcknowledgeRequest.
type DeliveryPush struct {
	SubscriptionRefID int32  `json:"subscriptionRefId"`
	ID                string `json:"id"`
	Payload           []byte `json:"payload"`
}

// PushWrapper is the outer envelope for a DeliveryPush, distinguished from
// RequestWrapper/ResponseWrapper by its own type tag so a single connection
// can multiplex request/response traffic and unsolicited pushes.
type PushWrapper struct {
	Type     string       `json:"type"`
	Delivery DeliveryPush `json:"delivery"`
}

// NewPushWrapper wraps a delivery for transmission.
func NewPushWrapper(d DeliveryPush) PushWrapper {
	return PushWrapper{Type: "delivery", Delivery: d}
}

// NewErrorResponse builds a ResponseWrapper carrying an Error body with the
// given refId.
func NewErrorResponse(refID int32, message string) ResponseWrapper {
	return ResponseWrapper{RefID: refID, Type: ResponseError, Error: &ErrorResponse{Message: message}}
}
