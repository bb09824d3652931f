package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/nifbridge/pkg/bridge"
	"github.com/Faultbox/nifbridge/pkg/nifly"
	"github.com/Faultbox/nifbridge/pkg/status"
)

type assetSummary struct {
	path      string
	game      string
	id        string
	nodes     int
	shapes    int
	sequences int
}

func (a *app) cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jobs := fs.Int("j", 4, "Load up to N models at once")
	if err := fs.Parse(args); err != nil || fs.NArg() < 1 {
		return usageError("info [-j N] <model>...")
	}

	// Distinct assets may be used from distinct goroutines.
	summaries := make([]assetSummary, fs.NArg())
	var g errgroup.Group
	g.SetLimit(max(*jobs, 1))
	for i, path := range fs.Args() {
		g.Go(func() error {
			s, err := a.summarize(path)
			summaries[i] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, s := range summaries {
		if i > 0 {
			fmt.Fprintln(a.out)
		}
		fmt.Fprintf(a.out, "Asset:     %s\n", s.path)
		fmt.Fprintf(a.out, "ID:        %s\n", s.id)
		fmt.Fprintf(a.out, "Game:      %s\n", s.game)
		fmt.Fprintf(a.out, "Nodes:     %d\n", s.nodes)
		fmt.Fprintf(a.out, "Shapes:    %d\n", s.shapes)
		fmt.Fprintf(a.out, "Sequences: %d\n", s.sequences)
	}
	return nil
}

func (a *app) summarize(path string) (assetSummary, error) {
	h, err := a.open(path)
	if err != nil {
		return assetSummary{}, err
	}
	defer a.bridge.Release(h)

	s := assetSummary{path: path}
	if s.game, err = a.text(status.ScopeAsset, func(b []byte) (int, status.Code) { return a.bridge.AssetGame(h, b) }); err != nil {
		return s, err
	}
	if s.id, err = a.text(status.ScopeAsset, func(b []byte) (int, status.Code) { return a.bridge.AssetID(h, b) }); err != nil {
		return s, err
	}
	var code status.Code
	if s.nodes, code = a.bridge.NodeCount(h); code != status.OK {
		return s, a.fail(status.ScopeAsset, code)
	}
	if s.shapes, code = a.bridge.ShapeCount(h); code != status.OK {
		return s, a.fail(status.ScopeAsset, code)
	}
	if s.sequences, code = a.bridge.SequenceCount(h); code != status.OK {
		return s, a.fail(status.ScopeAsset, code)
	}
	return s, nil
}

func (a *app) nodeName(h bridge.Handle) (string, error) {
	return a.text(status.ScopeNode, func(b []byte) (int, status.Code) { return a.bridge.NodeName(h, b) })
}

func (a *app) shapeName(h bridge.Handle) (string, error) {
	return a.text(status.ScopeShape, func(b []byte) (int, status.Code) { return a.bridge.ShapeName(h, b) })
}

func (a *app) cmdNodes(args []string) error {
	if len(args) != 1 {
		return usageError("nodes <model>")
	}
	h, err := a.open(args[0])
	if err != nil {
		return err
	}
	defer a.bridge.Release(h)

	count, code := a.bridge.NodeCount(h)
	if err := a.fail(status.ScopeAsset, code); err != nil {
		return err
	}

	depth := make(map[bridge.Handle]int)
	var depthOf func(bridge.Handle) int
	depthOf = func(n bridge.Handle) int {
		if d, ok := depth[n]; ok {
			return d
		}
		depth[n] = 0
		if p, code := a.bridge.NodeParent(n); code == status.OK && p != 0 {
			depth[n] = depthOf(p) + 1
		}
		return depth[n]
	}

	xf := make([]float32, bridge.TransformFloats)
	for i := range count {
		n, code := a.bridge.NodeAt(h, i)
		if err := a.fail(status.ScopeAsset, code); err != nil {
			return err
		}
		name, err := a.nodeName(n)
		if err != nil {
			return err
		}
		if err := a.fail(status.ScopeNode, a.bridge.GlobalTransform(n, xf)); err != nil {
			return err
		}
		mark := ""
		if a.bridge.Collision(n) == status.Unsupported {
			mark = " [collision]"
		}
		fmt.Fprintf(a.out, "%s%-*s (%8.3f %8.3f %8.3f) x%.3f%s\n",
			strings.Repeat("  ", depthOf(n)), 32, name, xf[0], xf[1], xf[2], xf[12], mark)
	}
	return nil
}

func (a *app) cmdShapes(args []string) error {
	if len(args) != 1 {
		return usageError("shapes <model>")
	}
	h, err := a.open(args[0])
	if err != nil {
		return err
	}
	defer a.bridge.Release(h)

	count, code := a.bridge.ShapeCount(h)
	if err := a.fail(status.ScopeAsset, code); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%-24s %8s %8s %-12s %6s %6s %8s\n", "SHAPE", "VERTS", "TRIS", "CHANNELS", "PARTS", "BONES", "WEIGHTS")
	for i := range count {
		s, code := a.bridge.ShapeAt(h, i)
		if err := a.fail(status.ScopeAsset, code); err != nil {
			return err
		}
		name, err := a.shapeName(s)
		if err != nil {
			return err
		}
		info, code := a.bridge.GeometrySize(s)
		if err := a.fail(status.ScopeShape, code); err != nil {
			return err
		}
		parts, _ := a.bridge.PartitionIDs(s, nil)
		bones, _ := a.bridge.SkinBones(s, nil)
		weights, _ := a.bridge.SkinWeightCount(s)

		fmt.Fprintf(a.out, "%-24s %8d %8d %-12s %6d %6d %8d\n",
			name, info.Vertices, info.Triangles, channels(info), parts, bones, weights)
	}
	return nil
}

func (a *app) cmdExtra(args []string) error {
	if len(args) != 1 {
		return usageError("extra <model>")
	}
	h, err := a.open(args[0])
	if err != nil {
		return err
	}
	defer a.bridge.Release(h)

	if err := a.printExtra("(root)", status.ScopeAsset, h); err != nil {
		return err
	}
	count, code := a.bridge.ShapeCount(h)
	if err := a.fail(status.ScopeAsset, code); err != nil {
		return err
	}
	for i := range count {
		s, code := a.bridge.ShapeAt(h, i)
		if err := a.fail(status.ScopeAsset, code); err != nil {
			return err
		}
		name, err := a.shapeName(s)
		if err != nil {
			return err
		}
		if err := a.printExtra(name, status.ScopeShape, s); err != nil {
			return err
		}
	}
	return nil
}

// printExtra lists the records on an asset's root or on a shape.
func (a *app) printExtra(owner string, scope status.Scope, h bridge.Handle) error {
	count, code := a.bridge.ExtraCount(h)
	if err := a.fail(scope, code); err != nil {
		return err
	}
	for i := range count {
		info, code := a.bridge.Extra(h, i)
		if err := a.fail(scope, code); err != nil {
			return err
		}
		name, err := a.text(scope, func(b []byte) (int, status.Code) { return a.bridge.ExtraName(h, i, b) })
		if err != nil {
			return err
		}

		var detail string
		switch info.Kind {
		case nifly.ExtraBSXFlags:
			detail = fmt.Sprintf("flags=%#x", info.Flags)
		case nifly.ExtraInvMarker:
			m := info.Marker
			detail = fmt.Sprintf("rot=(%g %g %g) zoom=%g", m[0], m[1], m[2], m[3])
		default:
			if detail, err = a.text(scope, func(b []byte) (int, status.Code) { return a.bridge.ExtraValue(h, i, b) }); err != nil {
				return err
			}
			if info.Kind == nifly.ExtraBehaviorGraph && info.Flags != 0 {
				detail += " (controls base skeleton)"
			}
		}
		fmt.Fprintf(a.out, "%-24s %-26s %-12s %s\n", owner, info.Kind, name, detail)
	}
	return nil
}

func channels(info bridge.GeometryInfo) string {
	var ch []string
	if info.HasNormals {
		ch = append(ch, "n")
	}
	if info.HasUVs {
		ch = append(ch, "uv")
	}
	if info.HasColors {
		ch = append(ch, "rgba")
	}
	if len(ch) == 0 {
		return "-"
	}
	return strings.Join(ch, ",")
}

func (a *app) cmdSkin(args []string) error {
	fs := flag.NewFlagSet("skin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("n", 50, "Limit weight rows (0 = all)")
	if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
		return usageError("skin [-n N] <model> <shape>")
	}

	h, err := a.open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.bridge.Release(h)

	shape, code := a.bridge.FindShape(h, fs.Arg(1))
	if err := a.fail(status.ScopeAsset, code); err != nil {
		return err
	}

	n, _ := a.bridge.SkinBones(shape, nil)
	bones := make([]bridge.Handle, n)
	if _, code := a.bridge.SkinBones(shape, bones); code != status.OK {
		return a.fail(status.ScopeShape, code)
	}
	if n == 0 {
		fmt.Fprintln(a.out, "Shape is not skinned")
		return nil
	}

	names := make([]string, n)
	fmt.Fprintln(a.out, "Bones:")
	for i, b := range bones {
		if names[i], err = a.nodeName(b); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "  %3d %s\n", i, names[i])
	}

	count, code := a.bridge.SkinWeightCount(shape)
	if err := a.fail(status.ScopeShape, code); err != nil {
		return err
	}
	weights := make([]bridge.SkinWeight, count)
	if _, code := a.bridge.SkinWeights(shape, weights); code != status.OK {
		return a.fail(status.ScopeShape, code)
	}

	fmt.Fprintf(a.out, "\nWeights (%d):\n", count)
	for i, w := range weights {
		if *limit > 0 && i >= *limit {
			fmt.Fprintf(a.out, "  ... %d more (use -n 0 for all)\n", count-i)
			break
		}
		fmt.Fprintf(a.out, "  v%-6d %-24s %.4f\n", w.Vertex, names[w.Bone], w.Weight)
	}
	return nil
}

func (a *app) cmdAnim(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("anim <model> [sequence]")
	}
	h, err := a.open(args[0])
	if err != nil {
		return err
	}
	defer a.bridge.Release(h)

	if len(args) == 1 {
		count, code := a.bridge.SequenceCount(h)
		if err := a.fail(status.ScopeAsset, code); err != nil {
			return err
		}
		for i := range count {
			name, err := a.text(status.ScopeAsset, func(b []byte) (int, status.Code) { return a.bridge.SequenceName(h, i, b) })
			if err != nil {
				return err
			}
			start, stop, code := a.bridge.SequenceRange(h, name)
			if err := a.fail(status.ScopeAsset, code); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%-24s %8.3f .. %8.3f\n", name, start, stop)
		}
		return nil
	}

	seq := args[1]
	if _, _, code := a.bridge.SequenceRange(h, seq); code != status.OK {
		return a.fail(status.ScopeAsset, code)
	}
	count, _ := a.bridge.NodeCount(h)
	for i := range count {
		n, code := a.bridge.NodeAt(h, i)
		if err := a.fail(status.ScopeAsset, code); err != nil {
			return err
		}
		size, code := a.bridge.TrackSize(n, seq)
		if code == status.Unsupported {
			name, _ := a.nodeName(n)
			fmt.Fprintf(a.out, "%-24s (euler keys, not exported)\n", name)
			continue
		}
		if err := a.fail(status.ScopeNode, code); err != nil {
			return err
		}
		if size == 0 {
			continue
		}
		track := make([]float32, size)
		if _, code := a.bridge.Track(n, seq, track); code != status.OK {
			return a.fail(status.ScopeNode, code)
		}
		name, err := a.nodeName(n)
		if err != nil {
			return err
		}
		keys := size / bridge.TrackStride
		fmt.Fprintf(a.out, "%-24s %4d keys  %8.3f .. %8.3f\n",
			name, keys, track[0], track[(keys-1)*bridge.TrackStride])
	}
	return nil
}

func (a *app) cmdConvert(args []string) error {
	if len(args) != 2 {
		return usageError("convert <in> <out>")
	}
	h, err := a.open(args[0])
	if err != nil {
		return err
	}
	defer a.bridge.Release(h)

	if err := a.fail(status.ScopeAsset, a.bridge.SaveAsset(h, args[1])); err != nil {
		return fmt.Errorf("saving %s: %w", args[1], err)
	}
	fmt.Fprintf(a.out, "Converted: %s -> %s\n", args[0], args[1])
	return nil
}
