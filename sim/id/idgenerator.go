// Package id provides the identifiers used for handlers, sessions and
// acceleration requests.
package id

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// Generator hands out identifiers that are unique within the process.
type Generator interface {
	Generate() string
}

// NewSequentialGenerator returns a generator that counts up from 1.
func NewSequentialGenerator() *SequentialGenerator {
	return &SequentialGenerator{}
}

// SequentialGenerator generates decimal ids in increasing order. It is safe
// for concurrent use.
type SequentialGenerator struct {
	nextID uint64
}

// Generate returns the next id.
func (g *SequentialGenerator) Generate() string {
	return strconv.FormatUint(g.Next(), 10)
}

// Next returns the next id as a number.
func (g *SequentialGenerator) Next() uint64 {
	return atomic.AddUint64(&g.nextID, 1)
}

// NewXIDGenerator returns a generator that produces globally unique,
// sortable ids.
func NewXIDGenerator() Generator {
	return xidGenerator{}
}

type xidGenerator struct{}

func (xidGenerator) Generate() string {
	return xid.New().String()
}
