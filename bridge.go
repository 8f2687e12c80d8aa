package shipwright

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"time"

	voxel "nickandperla.net/voxel"
)

type BridgeConfig struct {
	Address    string `toml:"address"`
	Retries    int    `toml:"retries"`
	BackoffMs  int    `toml:"backoff_ms"`
	MaxLineLen int    `toml:"max_line_len"`
}

func (c *BridgeConfig) withDefaults() *BridgeConfig {
	out := *c
	if out.Retries <= 0 {
		out.Retries = 3
	}
	if out.BackoffMs <= 0 {
		out.BackoffMs = 250
	}
	if out.MaxLineLen <= 0 {
		out.MaxLineLen = 1 << 20
	}
	return &out
}

// Bridge talks to the running game over a newline-framed JSON-RPC socket.
// Every call opens a fresh connection; the server keeps no session state.
type Bridge struct {
	Config *BridgeConfig
	dial   func(ctx context.Context, address string) (net.Conn, error)
}

func NewBridge(config *BridgeConfig) *Bridge {
	if config == nil {
		config = &BridgeConfig{}
	}
	return &Bridge{
		Config: config.withDefaults(),
		dial: func(ctx context.Context, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", address)
		},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int             `json:"id"`
}

// call sends one request and decodes the matching response, retrying on
// connection or framing failure with linear backoff.
func (b *Bridge) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt < b.Config.Retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(b.Config.BackoffMs*attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := b.callOnce(ctx, method, params, result); err != nil {
			lastErr = err
			log.Debugf("bridge call %s attempt %d failed: %v", method, attempt+1, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("bridge call %s failed after %d attempts: %w", method, b.Config.Retries, lastErr)
}

func (b *Bridge) callOnce(ctx context.Context, method string, params interface{}, result interface{}) error {
	conn, err := b.dial(ctx, b.Config.Address)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	id := rng.Intn(math.MaxInt32)
	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}
	payload, err := json.Marshal(&req)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		return err
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), b.Config.MaxLineLen)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return fmt.Errorf("empty response from %s", b.Config.Address)
	}

	var resp rpcResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("remote error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.ID != id {
		return fmt.Errorf("response id mismatch: sent %d, got %d", id, resp.ID)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("malformed result: %w", err)
		}
	}
	return nil
}

// BaseValues anchor structure placement in the game world.
type BaseValues struct {
	Position [3]float64 `json:"position"`
	Forward  [3]float64 `json:"forward"`
	Up       [3]float64 `json:"up"`
}

func (b *Bridge) GetBaseValues(ctx context.Context) (*BaseValues, error) {
	bv := &BaseValues{}
	if err := b.call(ctx, "Admin.Character.GetBaseValues", nil, bv); err != nil {
		return nil, err
	}
	return bv, nil
}

func (b *Bridge) ToggleGamemode(ctx context.Context, creative bool) error {
	mode := "survival"
	if creative {
		mode = "creative"
	}
	params := map[string]string{"mode": mode}
	return b.call(ctx, "Admin.SetGamemode", params, nil)
}

// BlockPlacement is one block order in game coordinates.
type BlockPlacement struct {
	BlockType string     `json:"blockType"`
	Position  [3]float64 `json:"position"`
	Forward   [3]float64 `json:"forward"`
	Up        [3]float64 `json:"up"`
	GridScale float64    `json:"gridScale"`
}

// PlaceBlocks ships a structure's blocks anchored at the base values. With
// sequential set, blocks go out one call at a time so the first block can
// start the grid before the rest attach to it.
func (b *Bridge) PlaceBlocks(ctx context.Context, st *voxel.Structure, base *BaseValues, gridScale float64, sequential bool) error {
	if st == nil || base == nil {
		return fmt.Errorf("structure and base values are required")
	}
	if gridScale <= 0 {
		gridScale = 1
	}
	placements := assemblePlacements(st, base, gridScale)
	if len(placements) == 0 {
		return nil
	}
	if !sequential {
		params := map[string]interface{}{"blocks": placements}
		return b.call(ctx, "Admin.Blocks.PlaceAt", params, nil)
	}
	for _, pl := range placements {
		params := map[string]interface{}{"blocks": []BlockPlacement{pl}}
		if err := b.call(ctx, "Admin.Blocks.PlaceAt", params, nil); err != nil {
			return err
		}
	}
	return nil
}

func assemblePlacements(st *voxel.Structure, base *BaseValues, gridScale float64) []BlockPlacement {
	var out []BlockPlacement
	for _, blk := range st.Blocks() {
		out = append(out, BlockPlacement{
			BlockType: blk.Type,
			Position: [3]float64{
				base.Position[0] + float64(blk.Origin.X)*gridScale,
				base.Position[1] + float64(blk.Origin.Y)*gridScale,
				base.Position[2] + float64(blk.Origin.Z)*gridScale,
			},
			Forward:   vecToWorld(blk.Orientation.Forward),
			Up:        vecToWorld(blk.Orientation.Up),
			GridScale: gridScale,
		})
	}
	return out
}

func vecToWorld(v voxel.Vec) [3]float64 {
	return [3]float64{float64(v.X), float64(v.Y), float64(v.Z)}
}
