package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_GetSet(t *testing.T) {
	c := New(4, time.Minute)

	_, ok := c.Get("https://tony.test/")
	assert.False(t, ok)

	c.Set("https://tony.test/", Page{Body: []byte("<p>hi</p>"), FinalURL: "https://tony.test/home"})

	got, ok := c.Get("https://tony.test/")
	assert.True(t, ok)
	assert.Equal(t, "<p>hi</p>", string(got.Body))
	assert.Equal(t, "https://tony.test/home", got.FinalURL)
}

func TestCache_Expires(t *testing.T) {
	c := New(4, time.Minute)
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	c.Set("https://tony.test/", Page{Body: []byte("x")})
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("https://tony.test/")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Capacity(t *testing.T) {
	c := New(2, time.Minute)

	c.Set("a", Page{})
	c.Set("b", Page{})
	c.Set("b", Page{Body: []byte("again")})
	assert.Equal(t, 2, c.Len())

	c.Set("c", Page{})
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("c")
	assert.True(t, ok)
}

func TestCache_Disabled(t *testing.T) {
	c := New(0, time.Minute)

	c.Set("a", Page{})

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
