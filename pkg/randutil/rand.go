// Package randutil 是可注入、可固定种子的随机源。
package randutil

import (
	"math/rand"
	"sync"
	"time"
)

// Rand 是召回打散与多样性插排使用的随机源。
type Rand interface {
	Float64() float64
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Locked 是并发安全的 *rand.Rand。
type Locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New 创建固定种子的随机源，测试中使用。
func New(seed int64) *Locked {
	return &Locked{r: rand.New(rand.NewSource(seed))}
}

// NewTimeSeeded 以当前时间为种子。
func NewTimeSeeded() *Locked {
	return New(time.Now().UnixNano())
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *Locked) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *Locked) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

// Shuffled 返回打乱后的副本，不修改入参。
func Shuffled[T any](r Rand, xs []T) []T {
	out := make([]T, len(xs))
	copy(out, xs)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
