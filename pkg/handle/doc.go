// Package handle maps opaque 64-bit handles to live values.
//
// A Handle packs a slot index, a generation and a kind:
//
//	bits  0-31  slot index + 1 (0 is never issued)
//	bits 32-55  generation
//	bits 56-63  kind
//
// Slots are reused only after an explicit Release and always with a new
// generation, so a stale handle never resolves to the slot's next occupant.
// Handles created with an owner die with it: releasing an asset releases
// every node and shape handle issued under it in the same critical section.
//
//	reg := handle.NewRegistry()
//	asset, _ := reg.Create(handle.KindAsset, 0, file)
//	node, _ := reg.Create(handle.KindNode, asset, ref)
//	_ = reg.Release(asset) // node is now invalid too
//
// Observers are notified after the registry lock is released.
//
// Each registry starts its generations at its own salt, so a handle from
// one registry fails to resolve in another. Detection is by generation
// only: a foreign handle whose slot generation happens to match still
// resolves.
package handle
