// Command libfilterengine builds the engine's C ABI boundary: a
// package main compiled with `go build -buildmode=c-shared`, exporting
// opaque-handle functions consumable from any C-linkage host (mobile VPN
// services, packet-tunnel extensions, desktop tunnels). It generalizes the
// teacher's internal HTTP-surface pattern (one exported function per
// operation, validated input, never a panic across the boundary) into a
// cgo export table.
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unicode/utf8"
	"unsafe"

	"github.com/shieldcore/filterengine/internal/options"
	"github.com/shieldcore/filterengine/pkg/engine"
)

var (
	handles    sync.Map // uint64 -> *engine.Engine
	nextHandle uint64
	handleMu   sync.Mutex
)

func registerHandle(e *engine.Engine) uint64 {
	handleMu.Lock()
	defer handleMu.Unlock()
	nextHandle++
	id := nextHandle
	handles.Store(id, e)
	return id
}

func lookupHandle(id uint64) (*engine.Engine, bool) {
	if id == 0 {
		return nil, false
	}
	v, ok := handles.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*engine.Engine), true
}

// guard recovers from any panic inside an exported function so no Go
// unwinding ever escapes into the C caller. When a panic is recovered,
// fallback (if non-nil) is called so the caller can reset its result to the
// safe default.
func guard(fallback func()) {
	if r := recover(); r != nil {
		if fallback != nil {
			fallback()
		}
	}
}

//export engine_create
func engine_create() C.uint64_t {
	var id uint64
	func() {
		defer guard(func() { id = 0 })
		e, err := engine.New(options.Default())
		if err != nil {
			id = 0
			return
		}
		id = registerHandle(e)
	}()
	return C.uint64_t(id)
}

//export engine_destroy
func engine_destroy(handle C.uint64_t) {
	defer guard(nil)
	id := uint64(handle)
	if id == 0 {
		return
	}
	if e, ok := lookupHandle(id); ok {
		e.Destroy()
		handles.Delete(id)
	}
}

//export engine_should_block
func engine_should_block(handle C.uint64_t, curl *C.char) C.bool {
	result := false
	func() {
		defer guard(func() { result = false })
		e, ok := lookupHandle(uint64(handle))
		if !ok || curl == nil {
			return
		}
		url := C.GoString(curl)
		if !utf8.ValidString(url) {
			return
		}
		result = e.ShouldBlock(engine.Query{URL: url})
	}()
	return C.bool(result)
}

//export engine_load_filter_list
func engine_load_filter_list(handle C.uint64_t, ctext *C.char) C.bool {
	result := false
	func() {
		defer guard(func() { result = false })
		e, ok := lookupHandle(uint64(handle))
		if !ok || ctext == nil {
			return
		}
		text := C.GoString(ctext)
		if !utf8.ValidString(text) {
			return
		}
		result = e.LoadRules(text)
	}()
	return C.bool(result)
}

//export engine_get_stats
func engine_get_stats(handle C.uint64_t) *C.char {
	body := "{}"
	func() {
		defer guard(func() { body = "{}" })
		e, ok := lookupHandle(uint64(handle))
		if !ok {
			return
		}
		body = e.GetStats()
	}()
	return C.CString(body)
}

//export engine_reset_stats
func engine_reset_stats(handle C.uint64_t) C.bool {
	result := false
	func() {
		defer guard(func() { result = false })
		e, ok := lookupHandle(uint64(handle))
		if !ok {
			return
		}
		result = e.ResetStats()
	}()
	return C.bool(result)
}

//export engine_get_metrics
func engine_get_metrics(handle C.uint64_t) *C.char {
	body := "{}"
	func() {
		defer guard(func() { body = "{}" })
		e, ok := lookupHandle(uint64(handle))
		if !ok {
			return
		}
		body = e.GetMetrics()
	}()
	return C.CString(body)
}

//export engine_free_string
func engine_free_string(s *C.char) {
	defer guard(nil)
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func main() {}
