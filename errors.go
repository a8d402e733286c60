package dieselgraph

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	vk "github.com/vulkan-go/vulkan"
)

var (
	// ErrNoDevice is returned when no physical device can host the requested queues.
	ErrNoDevice = errors.New("vulkan: no suitable GPU device")
	// ErrSurfaceFormat is returned when the surface offers no format the graph understands.
	ErrSurfaceFormat = errors.New("vulkan: no supported surface format")
	// ErrUnknownHandle is returned for graph handles the backend never issued or already released.
	ErrUnknownHandle = errors.New("vulkan: unknown handle")
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// newError converts a failing vk.Result into an error naming the calling function.
func newError(ret vk.Result) error {
	if !isError(ret) {
		return nil
	}
	if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			name := fn.Name()
			if i := strings.LastIndexByte(name, '/'); i >= 0 {
				name = name[i+1:]
			}
			return fmt.Errorf("vulkan error: %w (%d) on %s", vk.Error(ret), ret, name)
		}
	}
	return fmt.Errorf("vulkan error: %w (%d)", vk.Error(ret), ret)
}

func orPanic(err error, finalizers ...func()) {
	if err != nil {
		for _, fn := range finalizers {
			fn()
		}
		panic(err)
	}
}

// checkErr turns a panic raised by orPanic back into an error. Use it deferred.
func checkErr(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = e
			return
		}
		*err = fmt.Errorf("%+v", v)
	}
}
