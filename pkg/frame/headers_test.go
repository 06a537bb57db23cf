package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaders_AddGet(t *testing.T) {
	var h Headers
	h.Add("k", "1")
	h.Add("k", "2")
	h.Add("other", "x")

	v, ok := h.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, []string{"1", "2"}, h.GetAll("k"))
	assert.Equal(t, 3, h.Len())

	_, ok = h.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, h.GetAll("missing"))
}

func TestHeaders_SetReplacesFirst(t *testing.T) {
	h := Headers{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "a", Value: "3"}}
	h.Set("a", "9")
	h.Set("c", "4")

	assert.Equal(t, Headers{
		{Key: "a", Value: "9"},
		{Key: "b", Value: "2"},
		{Key: "a", Value: "3"},
		{Key: "c", Value: "4"},
	}, h)
}

func TestHeaders_Del(t *testing.T) {
	h := Headers{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "a", Value: "3"}}
	h.Del("a")
	assert.Equal(t, Headers{{Key: "b", Value: "2"}}, h)
}

func TestHeaders_DelLeavesCopiesIntact(t *testing.T) {
	f := &Frame{Headers: Headers{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}}}

	h := f.Headers
	h.Del("a")

	assert.Equal(t, Headers{{Key: "b", Value: "2"}, {Key: "c", Value: "3"}}, h)
	assert.Equal(t, Headers{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}}, f.Headers)

	h.Del("missing")
	assert.Equal(t, 2, h.Len())
}

func TestHeaders_CloneIsIndependent(t *testing.T) {
	h := Headers{{Key: "a", Value: "1"}}
	c := h.Clone()
	c.Set("a", "2")

	v, _ := h.Get("a")
	assert.Equal(t, "1", v)
	assert.Nil(t, Headers(nil).Clone())
}

func TestHeaders_TypedAccessors(t *testing.T) {
	h := Headers{
		{Key: HeaderType, Value: TypeEvent},
		{Key: HeaderMessageID, Value: "m1"},
		{Key: HeaderTraceID, Value: "t1"},
		{Key: HeaderSum, Value: "3"},
		{Key: HeaderSeq, Value: "2"},
	}

	assert.Equal(t, TypeEvent, h.Type())
	assert.Equal(t, "m1", h.MessageID())
	assert.Equal(t, "t1", h.TraceID())
	assert.Equal(t, 3, h.Sum())
	assert.Equal(t, 2, h.Seq())
}

func TestHeaders_Defaults(t *testing.T) {
	var h Headers
	assert.Equal(t, 1, h.Sum())
	assert.Equal(t, 0, h.Seq())
	assert.Equal(t, "", h.Type())

	h.Add(HeaderSum, "not-a-number")
	assert.Equal(t, 1, h.Sum())
}

func TestHeaders_BizRT(t *testing.T) {
	var h Headers
	_, ok := h.BizRT()
	assert.False(t, ok)

	h.SetBizRT(15)
	ms, ok := h.BizRT()
	assert.True(t, ok)
	assert.Equal(t, int64(15), ms)

	h.SetBizRT(20)
	assert.Equal(t, 1, h.Len())
}

func TestNewPing(t *testing.T) {
	f := NewPing(11)
	assert.Equal(t, int32(11), f.Service)
	assert.True(t, f.IsControl())
	assert.Equal(t, TypePing, f.Headers.Type())
	assert.Nil(t, f.Payload)
}
