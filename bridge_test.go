package shipwright

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// fakeGame serves newline-framed JSON-RPC: one request per connection,
// answered with the handler's result and the request's own id.
func fakeGame(t *testing.T, handler func(method string, params json.RawMessage) interface{}) (addr string, calls *int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var n int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				scanner := bufio.NewScanner(c)
				if !scanner.Scan() {
					return
				}
				var req struct {
					Method string          `json:"method"`
					Params json.RawMessage `json:"params"`
					ID     int             `json:"id"`
				}
				if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
					return
				}
				atomic.AddInt32(&n, 1)
				resp := map[string]interface{}{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"result":  handler(req.Method, req.Params),
				}
				payload, _ := json.Marshal(resp)
				c.Write(append(payload, '\n'))
			}(conn)
		}
	}()
	return ln.Addr().String(), &n
}

func TestGetBaseValues(t *testing.T) {
	addr, _ := fakeGame(t, func(method string, _ json.RawMessage) interface{} {
		if method != "Admin.Character.GetBaseValues" {
			t.Errorf("Unexpected method [%s]", method)
		}
		return map[string]interface{}{
			"position": []float64{10, 20, 30},
			"forward":  []float64{1, 0, 0},
			"up":       []float64{0, 1, 0},
		}
	})

	bridge := NewBridge(&BridgeConfig{Address: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bv, err := bridge.GetBaseValues(ctx)
	if err != nil {
		t.Fatalf("GetBaseValues failed: %v", err)
	}
	if bv.Position != [3]float64{10, 20, 30} {
		t.Errorf("Position [%v] is not expected value [10 20 30]", bv.Position)
	}
	if bv.Forward != [3]float64{1, 0, 0} || bv.Up != [3]float64{0, 1, 0} {
		t.Errorf("Orientation [%v / %v] is wrong", bv.Forward, bv.Up)
	}
}

func TestPlaceBlocksSequential(t *testing.T) {
	addr, calls := fakeGame(t, func(method string, params json.RawMessage) interface{} {
		if method != "Admin.Blocks.PlaceAt" {
			t.Errorf("Unexpected method [%s]", method)
		}
		var p struct {
			Blocks []BlockPlacement `json:"blocks"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			t.Errorf("Bad params: %v", err)
		}
		if len(p.Blocks) != 1 {
			t.Errorf("Sequential placement sent [%d] blocks in one call", len(p.Blocks))
		}
		return map[string]interface{}{"placed": len(p.Blocks)}
	})

	cs := builtStructure(t, "cockpit>corridor>thruster")
	base := &BaseValues{Position: [3]float64{100, 0, 0}}

	bridge := NewBridge(&BridgeConfig{Address: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := bridge.PlaceBlocks(ctx, cs.Structure(), base, 1, true); err != nil {
		t.Fatalf("PlaceBlocks failed: %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Errorf("Sequential placement made [%d] calls, expected [3]", got)
	}
}

func TestPlaceBlocksBatch(t *testing.T) {
	addr, calls := fakeGame(t, func(method string, params json.RawMessage) interface{} {
		var p struct {
			Blocks []BlockPlacement `json:"blocks"`
		}
		json.Unmarshal(params, &p)
		if len(p.Blocks) != 3 {
			t.Errorf("Batch placement sent [%d] blocks, expected [3]", len(p.Blocks))
		}
		return map[string]interface{}{"placed": len(p.Blocks)}
	})

	cs := builtStructure(t, "cockpit>corridor>thruster")
	base := &BaseValues{Position: [3]float64{0, 0, 0}}

	bridge := NewBridge(&BridgeConfig{Address: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := bridge.PlaceBlocks(ctx, cs.Structure(), base, 2, false); err != nil {
		t.Fatalf("PlaceBlocks failed: %v", err)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Errorf("Batch placement made [%d] calls, expected [1]", got)
	}
}

func TestBridgeRetriesThenFails(t *testing.T) {
	// A listener that closes connections without answering.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	var attempts int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddInt32(&attempts, 1)
			conn.Close()
		}
	}()

	bridge := NewBridge(&BridgeConfig{Address: ln.Addr().String(), Retries: 2, BackoffMs: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := bridge.GetBaseValues(ctx); err == nil {
		t.Fatal("Expected an error from a server that never answers")
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("Bridge made [%d] attempts, expected [2]", got)
	}
}

func TestBridgeRemoteError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				scanner := bufio.NewScanner(c)
				if !scanner.Scan() {
					return
				}
				var req struct {
					ID int `json:"id"`
				}
				json.Unmarshal(scanner.Bytes(), &req)
				resp := map[string]interface{}{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"error":   map[string]interface{}{"code": -32000, "message": "no character"},
				}
				payload, _ := json.Marshal(resp)
				c.Write(append(payload, '\n'))
			}(conn)
		}
	}()

	bridge := NewBridge(&BridgeConfig{Address: ln.Addr().String(), Retries: 1, BackoffMs: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = bridge.GetBaseValues(ctx)
	if err == nil {
		t.Fatal("Expected the remote error to surface")
	}
}
