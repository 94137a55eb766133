package compose

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gogpu/compositor/pipeline"
)

// Embedded WGSL building blocks for the composition shader variants.

//go:embed shaders/composite_base.wgsl
var baseShaderSource string

//go:embed shaders/transfer_srgb.wgsl
var srgbTransferSource string

//go:embed shaders/transfer_pq.wgsl
var pqTransferSource string

//go:embed shaders/transfer_linear.wgsl
var linearTransferSource string

// transferSnippet returns the WGSL snippet and function name prefix
// for a transfer function. The default transfer is treated as sRGB,
// the display convention.
func transferSnippet(tf pipeline.TransferFunction) (src, prefix string, err error) {
	switch tf {
	case pipeline.TransferDefault, pipeline.TransferSRGB:
		return srgbTransferSource, "srgb", nil
	case pipeline.TransferPQ:
		return pqTransferSource, "pq", nil
	case pipeline.TransferLinear:
		return linearTransferSource, "linear", nil
	default:
		return "", "", fmt.Errorf("compose: unknown transfer function %d", tf)
	}
}

// compositionShader assembles the WGSL source that converts
// source-encoded pixels to the target encoding: decode with the
// source transfer curve, apply the embedder-supplied color matrix,
// re-encode with the target curve.
func compositionShader(source, target pipeline.ColorState) (string, error) {
	srcSnippet, srcPrefix, err := transferSnippet(source.Transfer)
	if err != nil {
		return "", err
	}
	dstSnippet, dstPrefix, err := transferSnippet(target.Transfer)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(srcSnippet)
	if dstPrefix != srcPrefix {
		b.WriteString("\n")
		b.WriteString(dstSnippet)
	}
	fmt.Fprintf(&b, "\nfn decode(v: vec3<f32>) -> vec3<f32> {\n    return %s_eotf(v);\n}\n", srcPrefix)
	fmt.Fprintf(&b, "\nfn encode(v: vec3<f32>) -> vec3<f32> {\n    return %s_inv_eotf(v);\n}\n\n", dstPrefix)
	b.WriteString(baseShaderSource)
	return b.String(), nil
}
