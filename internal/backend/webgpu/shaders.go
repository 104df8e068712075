//go:build windows

package webgpu

// workgroupSize is the 1D workgroup size of the elementwise shaders.
const workgroupSize = 256

// binaryShader returns an elementwise shader computing result = a <expr> b.
func binaryShader(expr string) string {
	return `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = ` + expr + `;
    }
}
`
}

var (
	addShader = binaryShader("a[idx] + b[idx]")
	subShader = binaryShader("a[idx] - b[idx]")
	mulShader = binaryShader("a[idx] * b[idx]")
	divShader = binaryShader("a[idx] / b[idx]")
)

// matmulShader computes C[M,N] = op(A) @ op(B); op transposes a stored
// operand when its flag is set.
const matmulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    M: u32,
    K: u32,
    N: u32,
    trans: u32, // bit 0: A, bit 1: B
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;

    if (row >= params.M || col >= params.N) {
        return;
    }

    let trans_a = (params.trans & 1u) != 0u;
    let trans_b = (params.trans & 2u) != 0u;
    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        var a_idx = row * params.K + k;
        if (trans_a) {
            a_idx = k * params.M + row;
        }
        var b_idx = k * params.N + col;
        if (trans_b) {
            b_idx = col * params.K + k;
        }
        sum = sum + a[a_idx] * b[b_idx];
    }

    result[row * params.N + col] = sum;
}
`

// transposeShader transposes a 2D matrix.
const transposeShader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    rows: u32,
    cols: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;

    if (row >= params.rows || col >= params.cols) {
        return;
    }

    result[col * params.rows + row] = input[row * params.cols + col];
}
`
