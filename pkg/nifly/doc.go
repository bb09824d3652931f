// Package nifly is the model library: an owned graph of nodes, mesh shapes,
// skins and animation sequences, with load and save.
//
// Nodes and shapes live in flat slices and refer to their parent by index
// (-1 for none); node 0 is the scene root. Skins are stored per bone the way
// the game format stores them: each bone carries the list of vertices it
// influences.
//
// Files are persisted in a compact CBOR container ("NIFC"). RSM models can be
// imported, either from disk or from asset packs.
package nifly
