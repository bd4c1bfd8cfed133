package utils

import "sync"

// SyncMap is a typed wrapper over sync.Map.
type SyncMap[K comparable, V any] struct {
	sm sync.Map
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{}
}

func (m *SyncMap[K, V]) Store(key K, value V) {
	m.sm.Store(key, value)
}

func (m *SyncMap[K, V]) Load(key K) (V, bool) {
	val, ok := m.sm.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return val.(V), true
}

// LoadOrStore returns the existing value for key if present, otherwise it stores value.
func (m *SyncMap[K, V]) LoadOrStore(key K, value V) (V, bool) {
	val, loaded := m.sm.LoadOrStore(key, value)
	return val.(V), loaded
}

func (m *SyncMap[K, V]) LoadAndDelete(key K) (V, bool) {
	val, ok := m.sm.LoadAndDelete(key)
	if !ok {
		var zero V
		return zero, false
	}
	return val.(V), true
}

// CompareAndDelete removes key only while it still maps to old.
func (m *SyncMap[K, V]) CompareAndDelete(key K, old V) bool {
	return m.sm.CompareAndDelete(key, old)
}

func (m *SyncMap[K, V]) Range(f func(key K, value V) bool) {
	m.sm.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}

func (m *SyncMap[K, V]) Len() int {
	count := 0
	m.sm.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
