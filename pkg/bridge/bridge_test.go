package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/nifbridge/pkg/math"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/status"
)

func newBridge(t *testing.T, opts ...Option) *Bridge {
	t.Helper()
	b := New(nifly.NewLibrary(), opts...)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func flat(xf math.Transform) []float32 {
	out := make([]float32, TransformFloats)
	xf.Flatten(out)
	return out
}

func translated(x, y, z float32) []float32 {
	xf := math.IdentityTransform()
	xf.Translation = math.Vec3{X: x, Y: y, Z: z}
	return flat(xf)
}

func mustAsset(t *testing.T, b *Bridge) Handle {
	t.Helper()
	h, code := b.CreateAsset("SKYRIMSE", "")
	require.Equal(t, status.OK, code)
	return h
}

func mustRoot(t *testing.T, b *Bridge, asset Handle) Handle {
	t.Helper()
	root, code := b.NodeAt(asset, 0)
	require.Equal(t, status.OK, code)
	return root
}

func mustNode(t *testing.T, b *Bridge, asset Handle, name string, parent Handle, xf []float32) Handle {
	t.Helper()
	h, code := b.AddNode(asset, name, parent, xf)
	require.Equal(t, status.OK, code, lastError(b, status.ScopeAsset))
	return h
}

func lastError(b *Bridge, scope status.Scope) string {
	buf := make([]byte, 512)
	n, _ := b.LastError(scope, buf)
	return string(buf[:n])
}

func TestCreateAsset(t *testing.T) {
	b := newBridge(t)
	h := mustAsset(t, b)

	buf := make([]byte, 16)
	n, code := b.AssetGame(h, buf)
	require.Equal(t, status.OK, code)
	assert.Equal(t, "SKYRIMSE", string(buf[:n]))

	count, code := b.NodeCount(h)
	require.Equal(t, status.OK, code)
	assert.Equal(t, 1, count)

	root := mustRoot(t, b, h)
	n, code = b.NodeName(root, buf)
	require.Equal(t, status.OK, code)
	assert.Equal(t, nifly.RootName, string(buf[:n]))

	parent, code := b.NodeParent(root)
	require.Equal(t, status.OK, code)
	assert.Zero(t, parent)

	_, code = b.CreateAsset("MORROWIND", "")
	assert.Equal(t, status.Unsupported, code)
}

func TestAssetID(t *testing.T) {
	b := newBridge(t)
	h := mustAsset(t, b)

	n, code := b.AssetID(h, nil)
	assert.Equal(t, status.BufferTooSmall, code)
	assert.Equal(t, 36, n)

	buf := make([]byte, n)
	_, code = b.AssetID(h, buf)
	require.Equal(t, status.OK, code)
	assert.Len(t, string(buf), 36)
}

func TestHandles_StableWhileLive(t *testing.T) {
	b := newBridge(t)
	h := mustAsset(t, b)
	root := mustRoot(t, b, h)

	again, code := b.NodeAt(h, 0)
	require.Equal(t, status.OK, code)
	assert.Equal(t, root, again)

	found, code := b.FindNode(h, nifly.RootName)
	require.Equal(t, status.OK, code)
	assert.Equal(t, root, found)

	owner, code := b.OwnerAsset(root)
	require.Equal(t, status.OK, code)
	assert.Equal(t, h, owner)

	_, code = b.FindNode(h, "missing")
	assert.Equal(t, status.InvalidHandle, code)
	_, code = b.NodeAt(h, 5)
	assert.Equal(t, status.InvalidHandle, code)
}

func TestRelease_Cascades(t *testing.T) {
	b := newBridge(t)
	h := mustAsset(t, b)
	root := mustRoot(t, b, h)
	bone := mustNode(t, b, h, "Bone", root, translated(1, 0, 0))
	shape, code := b.CreateShape(h, "Tri", bone, Geometry{
		Vertices:  []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Triangles: []uint16{0, 1, 2},
	})
	require.Equal(t, status.OK, code)
	assert.Equal(t, 4, b.Live())

	require.Equal(t, status.OK, b.Release(h))
	assert.Zero(t, b.Live())

	_, code = b.NodeCount(h)
	assert.Equal(t, status.InvalidHandle, code)
	_, code = b.NodeName(bone, make([]byte, 8))
	assert.Equal(t, status.InvalidHandle, code)
	_, code = b.Vertices(shape, make([]float32, 9))
	assert.Equal(t, status.InvalidHandle, code)
}

func TestRelease_Twice(t *testing.T) {
	b := newBridge(t)
	h := mustAsset(t, b)

	require.Equal(t, status.OK, b.Release(h))
	assert.Equal(t, status.InvalidHandle, b.Release(h))
	assert.Contains(t, lastError(b, status.ScopeAsset), "invalid_handle")
}

func TestRelease_NodeHandleReissued(t *testing.T) {
	b := newBridge(t)
	h := mustAsset(t, b)
	root := mustRoot(t, b, h)

	require.Equal(t, status.OK, b.Release(root))
	_, code := b.NodeName(root, make([]byte, 32))
	assert.Equal(t, status.InvalidHandle, code)

	fresh := mustRoot(t, b, h)
	assert.NotEqual(t, root, fresh)
	_, code = b.NodeName(fresh, make([]byte, 32))
	assert.Equal(t, status.OK, code)
}

func TestHandles_WrongKind(t *testing.T) {
	b := newBridge(t)
	h := mustAsset(t, b)
	root := mustRoot(t, b, h)

	_, code := b.NodeCount(root)
	assert.Equal(t, status.InvalidHandle, code)
	_, code = b.NodeName(h, make([]byte, 8))
	assert.Equal(t, status.InvalidHandle, code)
	_, code = b.Vertices(root, nil)
	assert.Equal(t, status.InvalidHandle, code)
	_, code = b.NodeCount(0)
	assert.Equal(t, status.InvalidHandle, code)
}

func TestHandles_ForeignNode(t *testing.T) {
	b := newBridge(t)
	a1 := mustAsset(t, b)
	a2 := mustAsset(t, b)
	other := mustRoot(t, b, a2)

	_, code := b.AddNode(a1, "Bone", other, translated(0, 0, 0))
	assert.Equal(t, status.InvalidHandle, code)
	assert.Contains(t, lastError(b, status.ScopeAsset), "another asset")

	count, _ := b.NodeCount(a1)
	assert.Equal(t, 1, count)
}

func TestHandles_ForgedIndex(t *testing.T) {
	b := newBridge(t)
	mustAsset(t, b)

	forged := Handle(1) << 32
	_, code := b.NodeCount(forged)
	assert.Equal(t, status.InvalidHandle, code)
	assert.Equal(t, status.InvalidHandle, b.Release(forged))
	assert.Contains(t, lastError(b, status.ScopeAsset), "never issued")
	assert.Equal(t, 1, b.Live())
}

func TestHandles_OtherBridge(t *testing.T) {
	b1 := newBridge(t)
	b2 := newBridge(t)
	h1 := mustAsset(t, b1)
	mustAsset(t, b2)

	_, code := b2.NodeCount(h1)
	assert.Equal(t, status.InvalidHandle, code)
	assert.Equal(t, status.InvalidHandle, b2.Release(h1))

	_, code = b1.NodeCount(h1)
	assert.Equal(t, status.OK, code)
}

func TestLastError_ClearedOnSuccess(t *testing.T) {
	b := newBridge(t)
	h := mustAsset(t, b)
	root := mustRoot(t, b, h)

	code := b.LocalTransform(root, make([]float32, 3))
	require.Equal(t, status.BufferTooSmall, code)
	msg := lastError(b, status.ScopeNode)
	assert.Contains(t, msg, "local_transform")

	// Other scopes are untouched.
	assert.Empty(t, lastError(b, status.ScopeShape))

	require.Equal(t, status.OK, b.LocalTransform(root, make([]float32, TransformFloats)))
	assert.Empty(t, lastError(b, status.ScopeNode))
}

func TestLastError_ShortBuffer(t *testing.T) {
	b := newBridge(t)
	_, code := b.NodeCount(0)
	require.Equal(t, status.InvalidHandle, code)

	n, code := b.LastError(status.ScopeAsset, make([]byte, 2))
	assert.Equal(t, status.BufferTooSmall, code)
	assert.Greater(t, n, 2)

	// Querying does not clear the slot.
	assert.NotEmpty(t, lastError(b, status.ScopeAsset))
}

type panicLibrary struct {
	*nifly.Library
}

func (panicLibrary) Load(string) (*nifly.File, error) {
	panic("corrupt block table")
}

func (panicLibrary) SaveBytes(f *nifly.File) ([]byte, error) {
	return []byte(f.Shapes[len(f.Shapes)].Name), nil
}

func TestPanicBecomesLibraryFailure(t *testing.T) {
	b := New(panicLibrary{nifly.NewLibrary()})
	defer b.Close()

	h, code := b.LoadAsset("body.nifc")
	assert.Equal(t, status.ModelLibraryFailure, code)
	assert.Zero(t, h)
	assert.Contains(t, lastError(b, status.ScopeLibrary), "corrupt block table")

	a, code := b.CreateAsset("", "")
	require.Equal(t, status.OK, code)
	_, code = b.SaveAssetBytes(a, nil)
	assert.Equal(t, status.ModelLibraryFailure, code)
	assert.Contains(t, lastError(b, status.ScopeAsset), "panic")
}

type failingLibrary struct {
	*nifly.Library
}

var errDisk = errors.New("disk on fire")

func (failingLibrary) Save(*nifly.File, string) error { return errDisk }

func TestLibraryErrorsSurface(t *testing.T) {
	b := New(failingLibrary{nifly.NewLibrary()})
	defer b.Close()

	h, code := b.CreateAsset("FO4", "")
	require.Equal(t, status.OK, code)
	assert.Equal(t, status.ModelLibraryFailure, b.SaveAsset(h, "out.nifc"))
	assert.Contains(t, lastError(b, status.ScopeAsset), errDisk.Error())

	_, code = b.LoadAssetBytes([]byte("not a model"))
	assert.Equal(t, status.ModelLibraryFailure, code)
}

func TestSaveLoad_Bytes(t *testing.T) {
	b := newBridge(t)
	h := mustAsset(t, b)
	root := mustRoot(t, b, h)
	mustNode(t, b, h, "Bone", root, translated(0, 1, 0))

	n, code := b.SaveAssetBytes(h, nil)
	require.Equal(t, status.BufferTooSmall, code)
	buf := make([]byte, n)
	_, code = b.SaveAssetBytes(h, buf)
	require.Equal(t, status.OK, code)

	loaded, code := b.LoadAssetBytes(buf)
	require.Equal(t, status.OK, code)
	count, _ := b.NodeCount(loaded)
	assert.Equal(t, 2, count)

	bone, code := b.FindNode(loaded, "Bone")
	require.Equal(t, status.OK, code)
	dst := make([]float32, TransformFloats)
	require.Equal(t, status.OK, b.LocalTransform(bone, dst))
	assert.Equal(t, translated(0, 1, 0), dst)
}

func TestLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	b := newBridge(t, WithLogger(zap.New(core)))

	_, code := b.NodeCount(0)
	require.Equal(t, status.InvalidHandle, code)

	failures := logs.FilterMessage("bridge call failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "node_count", failures[0].ContextMap()["op"])
	assert.Equal(t, "invalid_handle", failures[0].ContextMap()["code"])
}

func TestMaxHandles(t *testing.T) {
	b := newBridge(t, WithMaxHandles(2))
	h := mustAsset(t, b)
	mustRoot(t, b, h)

	_, code := b.CreateAsset("", "")
	assert.Equal(t, status.ModelLibraryFailure, code)
}

func TestConcurrentAssets(t *testing.T) {
	b := newBridge(t)

	var g errgroup.Group
	for w := range 16 {
		g.Go(func() error {
			for i := range 50 {
				h, code := b.CreateAsset("SKYRIM", "")
				if code != status.OK {
					return fmt.Errorf("worker %d: create: %s", w, code)
				}
				root, code := b.NodeAt(h, 0)
				if code != status.OK {
					return fmt.Errorf("worker %d: root: %s", w, code)
				}
				name := fmt.Sprintf("bone-%d-%d", w, i)
				if _, code := b.AddNode(h, name, root, translated(float32(i), 0, 0)); code != status.OK {
					return fmt.Errorf("worker %d: add node: %s", w, code)
				}
				if code := b.Release(h); code != status.OK {
					return fmt.Errorf("worker %d: release: %s", w, code)
				}
				if _, code := b.NodeName(root, make([]byte, 32)); code != status.InvalidHandle {
					return fmt.Errorf("worker %d: stale root resolved: %s", w, code)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Zero(t, b.Live())
}
