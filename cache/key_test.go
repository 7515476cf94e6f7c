package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyScalars(t *testing.T) {
	assert.Equal(t, "users", Key("users"))
	assert.Equal(t, "user-1", Key("user", 1))
	assert.Equal(t, "user-1-posts", Key("user", int64(1), "posts"))
	assert.Equal(t, "flag-true", Key("flag", true))
	assert.Equal(t, "price-1.5", Key("price", 1.5))
	assert.Equal(t, "opt-null", Key("opt", nil))
}

func TestKeyCompositeIsStable(t *testing.T) {
	a := Key("search", map[string]any{"q": "go", "page": 2, "tags": []string{"x", "y"}})
	b := Key("search", map[string]any{"tags": []string{"x", "y"}, "page": 2, "q": "go"})
	assert.Equal(t, a, b)
	assert.Len(t, a, len("search-")+16)

	c := Key("search", map[string]any{"q": "go", "page": 3})
	assert.NotEqual(t, a, c)

	type filter struct {
		Owner string
		Limit int
	}
	assert.Equal(t, Key("todos", filter{"ann", 10}), Key("todos", filter{"ann", 10}))
	assert.NotEqual(t, Key("todos", filter{"ann", 10}), Key("todos", filter{"bob", 10}))
}

func TestKeyUnencodableFallsBack(t *testing.T) {
	ch := make(chan int)
	assert.Equal(t, Key("weird", ch), Key("weird", ch))
}
