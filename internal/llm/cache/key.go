package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/ahrav/go-evalset/internal/domain"
)

// key derives the cache key for one generation. Fields are NUL-separated so
// adjacent values cannot collide.
func (m *Middleware) key(item domain.CorpusItem, params domain.GenerationParams) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	write(m.namespace)
	write(item.Text())
	write(strconv.Itoa(params.PairsPerItem))
	for _, q := range params.ExampleQuestions {
		write(q)
	}
	return m.keyPrefix + hex.EncodeToString(h.Sum(nil))
}
