// Package status converts failures at the bridge boundary into a closed set
// of status codes.
//
// Every boundary call returns a Code. The full message for the most recent
// failure is kept in a per-scope slot and read back with Slots.Copy:
//
//	code := slots.Record(status.ScopeShape, err)
//	if code != status.OK {
//		n, _ := slots.Copy(status.ScopeShape, buf)
//		log.Print(string(buf[:n]))
//	}
//
// Slots are scoped by handle category (library, asset, node, shape). Two
// goroutines sharing a scope overwrite each other's message; callers that
// need per-goroutine messages must use separate Slots values.
package status
