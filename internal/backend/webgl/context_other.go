//go:build !(js && wasm)

package webgl

import (
	"fmt"

	"github.com/born-ml/onnxgl/internal/backend/webgl/glsl"
)

// newPlatformContext fails outside the browser. Callers inject a Context,
// usually an OfflineContext, with WithContext.
func newPlatformContext(d glsl.Dialect) (Context, error) {
	return nil, fmt.Errorf("%w: %s requires js/wasm", ErrNoContext, d)
}
