// Package pool provides object pooling for the JSON built on every popup
// request.
package pool

import (
	"sync"
)

// MapPool pools map[string]interface{} for JSON output
var MapPool = sync.Pool{
	New: func() interface{} {
		return make(map[string]interface{}, 4)
	},
}

// StringSlicePool pools []string for collection name lists
var StringSlicePool = sync.Pool{
	New: func() interface{} {
		s := make([]string, 0, 16)
		return &s
	},
}

// GetMap gets an empty map from pool
func GetMap() map[string]interface{} {
	m := MapPool.Get().(map[string]interface{})
	clear(m)
	return m
}

// PutMap returns a map to pool
func PutMap(m map[string]interface{}) {
	MapPool.Put(m)
}

// GetStrings gets an empty string slice from pool
func GetStrings() *[]string {
	s := StringSlicePool.Get().(*[]string)
	*s = (*s)[:0]
	return s
}

// PutStrings returns a string slice to pool
func PutStrings(s *[]string) {
	clear(*s)
	StringSlicePool.Put(s)
}
