package frame

// Method discriminates control traffic from business traffic.
const (
	MethodControl int32 = 0
	MethodData    int32 = 1
)

// Frame is one unit of the push protocol.
//
// Service, Method, Headers and Payload carry the protocol semantics. SeqID,
// LogID, PayloadEncoding, PayloadType and LogIDNew are transported opaquely
// so responses can echo them back.
type Frame struct {
	SeqID           uint64
	LogID           uint64
	Service         int32
	Method          int32
	Headers         Headers
	PayloadEncoding string
	PayloadType     string
	Payload         []byte // nil when absent
	LogIDNew        string
}

// NewPing builds the application heartbeat frame for a service.
func NewPing(service int32) *Frame {
	f := &Frame{
		Service: service,
		Method:  MethodControl,
	}
	f.Headers.Add(HeaderType, TypePing)
	return f
}

// IsControl reports whether the frame belongs to session management.
func (f *Frame) IsControl() bool {
	return f.Method == MethodControl
}

// IsData reports whether the frame carries a business event or response.
func (f *Frame) IsData() bool {
	return f.Method == MethodData
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Headers = f.Headers.Clone()
	if f.Payload != nil {
		c.Payload = make([]byte, len(f.Payload))
		copy(c.Payload, f.Payload)
	}
	return &c
}
