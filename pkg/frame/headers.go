package frame

import "strconv"

// Header keys understood by the client.
const (
	HeaderType      = "type"
	HeaderSum       = "sum"
	HeaderSeq       = "seq"
	HeaderMessageID = "message_id"
	HeaderTraceID   = "trace_id"
	HeaderBizRT     = "biz_rt"
)

// Values carried by the "type" header.
const (
	TypeEvent = "event"
	TypeCard  = "card"
	TypePing  = "ping"
	TypePong  = "pong"
)

// Header is a single key/value pair of a frame.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered multimap. Insertion order and duplicate keys are
// preserved so that a decoded header list encodes back byte for byte.
type Headers []Header

// Add appends a pair, keeping any existing pairs with the same key.
func (h *Headers) Add(key, value string) {
	*h = append(*h, Header{Key: key, Value: value})
}

// Set replaces the value of the first pair with key, or appends a new pair.
func (h *Headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = value
			return
		}
	}
	h.Add(key, value)
}

// Del removes every pair with key. The remaining pairs are copied to a new
// slice, so copies of h sharing its backing array are left intact.
func (h *Headers) Del(key string) {
	n := 0
	for _, p := range *h {
		if p.Key != key {
			n++
		}
	}
	if n == len(*h) {
		return
	}

	out := make(Headers, 0, n)
	for _, p := range *h {
		if p.Key != key {
			out = append(out, p)
		}
	}
	*h = out
}

// Get returns the value of the first pair with key.
func (h Headers) Get(key string) (string, bool) {
	for _, p := range h {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// GetAll returns every value stored under key, in order.
func (h Headers) GetAll(key string) []string {
	var values []string
	for _, p := range h {
		if p.Key == key {
			values = append(values, p.Value)
		}
	}
	return values
}

// Len returns the number of pairs.
func (h Headers) Len() int {
	return len(h)
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Type returns the "type" header.
func (h Headers) Type() string {
	v, _ := h.Get(HeaderType)
	return v
}

// MessageID returns the "message_id" header.
func (h Headers) MessageID() string {
	v, _ := h.Get(HeaderMessageID)
	return v
}

// TraceID returns the "trace_id" header.
func (h Headers) TraceID() string {
	v, _ := h.Get(HeaderTraceID)
	return v
}

// Sum returns the total fragment count. Missing or unparsable values mean a
// self-contained message.
func (h Headers) Sum() int {
	return h.intValue(HeaderSum, 1)
}

// Seq returns the fragment index, 0 when absent.
func (h Headers) Seq() int {
	return h.intValue(HeaderSeq, 0)
}

// BizRT returns the handler latency in milliseconds carried by a response.
func (h Headers) BizRT() (int64, bool) {
	v, ok := h.Get(HeaderBizRT)
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// SetBizRT records the handler latency in milliseconds.
func (h *Headers) SetBizRT(ms int64) {
	h.Set(HeaderBizRT, strconv.FormatInt(ms, 10))
}

func (h Headers) intValue(key string, def int) int {
	v, ok := h.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
