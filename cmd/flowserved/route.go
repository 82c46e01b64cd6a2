package main

import (
	"github.com/christianparpart/x0-sub009/internal/fastcgi"
	"github.com/christianparpart/x0-sub009/internal/flow"
	"github.com/christianparpart/x0-sub009/internal/flow/asm"
	"github.com/christianparpart/x0-sub009/internal/http1"
)

const routeHandlerName = "route"

const (
	pathReg   = uint16(0)
	resultReg = uint16(1)
)

// buildRoutingProgram compiles one of the daemon's two built-in routing
// programs and returns it together with the call sites Link needs and the
// PC a fresh Runner should start at.
//
//   - "default-backend": every request goes to backend.default.
//   - "static": requests under /static/ go to backend.static, everything
//     else falls through to backend.default, chosen via OpMatchHead.
func buildRoutingProgram(mode string) (*flow.Program, map[string][]flow.CallSite, int) {
	b := asm.New()
	h := b.Handler(routeHandlerName)

	if mode != "static" {
		h.NativeHandlerCall(resultReg, "backend.default", 0, nil)
		h.Emit(flow.OpExit, resultReg, 0, 0)
		return b.Program(), b.CallSites(), 0
	}

	staticPC := h.PC()
	h.NativeHandlerCall(resultReg, "backend.static", 0, nil)
	h.Emit(flow.OpExit, resultReg, 0, 0)

	defaultPC := h.PC()
	h.NativeHandlerCall(resultReg, "backend.default", 0, nil)
	h.Emit(flow.OpExit, resultReg, 0, 0)

	table := flow.NewHeadMatch(map[string]uint32{"/static/": uint32(staticPC)})
	tableIdx := h.MatchTable(table)

	entryPC := h.PC()
	h.NativeCall(pathReg, "req.path", 0, nil)
	h.Emit(flow.OpMatchHead, pathReg, tableIdx, uint16(defaultPC))

	return b.Program(), b.CallSites(), entryPC
}

func defaultHTTPBackend(ch *http1.Channel) {
	ch.Header().Set("Content-Type", "text/plain; charset=utf-8")
	ch.AppendBuffer([]byte("flowserve: ok\n"))
	ch.Complete()
}

func staticHTTPBackend(ch *http1.Channel) {
	ch.Header().Set("Content-Type", "text/plain; charset=utf-8")
	ch.AppendBuffer([]byte("flowserve: static\n"))
	ch.Complete()
}

func defaultFastCGIBackend(ch *fastcgi.Channel) {
	ch.Header().Set("Content-Type", "text/plain; charset=utf-8")
	ch.AppendBuffer([]byte("flowserve: ok\n"))
	ch.Complete()
}
