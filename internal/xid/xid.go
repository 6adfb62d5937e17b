package xid

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// New returns a random document identifier.
func New() string {
	return uuid.NewString()
}

// IntSource yields integers in [0, n). *rand.Rand satisfies it.
type IntSource interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int {
	return rand.Intn(n)
}

const (
	receiptPrefix    = "R"
	receiptSuffixMin = 1000
	receiptSuffixMax = 9999
)

// ReceiptGenerator builds receipt numbers shaped R-yyyyMMdd-HHmmss-NNNN.
type ReceiptGenerator struct {
	mu  sync.Mutex
	src IntSource
}

func NewReceiptGenerator(src IntSource) *ReceiptGenerator {
	if src == nil {
		src = globalSource{}
	}
	return &ReceiptGenerator{src: src}
}

func (g *ReceiptGenerator) Next(at time.Time) string {
	g.mu.Lock()
	suffix := receiptSuffixMin + g.src.IntN(receiptSuffixMax-receiptSuffixMin+1)
	g.mu.Unlock()
	return fmt.Sprintf("%s-%s-%04d", receiptPrefix, at.UTC().Format("20060102-150405"), suffix)
}
