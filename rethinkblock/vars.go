package rethinkblock

import (
	"expvar"
	"fmt"
)

// getVarInt returns a process-wide *expvar.Int for the given path,
// reusing one already registered under the same name (mirrors the
// teacher's vars.go helpers, renamed to this package's namespace).
func getVarInt(id, name string) *expvar.Int {
	fullname := fmt.Sprintf("rethinkblock.%s.%s", id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(fullname)
}

func getVarString(id, name string) *expvar.String {
	fullname := fmt.Sprintf("rethinkblock.%s.%s", id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.String)
	}
	return expvar.NewString(fullname)
}
