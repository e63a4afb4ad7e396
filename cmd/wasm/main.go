//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"github.com/studiospace/plankit/internal/editor"
	"github.com/studiospace/plankit/internal/engine"
	"github.com/studiospace/plankit/internal/geometry"
	"github.com/studiospace/plankit/internal/plan"
)

var (
	eng     *engine.Engine
	session *engine.Coordinator
	stopRun context.CancelFunc
	onHit   js.Value

	ed   = editor.New(editor.DefaultConfig())
	edit *editor.Session
)

func main() {
	reset(engine.New("", engine.DefaultConfig(), nil))

	// Create the engine API object
	api := js.Global().Get("Object").New()

	// Commands
	api.Set("loadFloor", js.FuncOf(loadFloor))
	api.Set("loadSampleFloor", js.FuncOf(loadSampleFloor))
	api.Set("setTransform", js.FuncOf(setTransform))
	api.Set("pan", js.FuncOf(pan))
	api.Set("zoomAt", js.FuncOf(zoomAt))
	api.Set("fit", js.FuncOf(fit))
	api.Set("submitSample", js.FuncOf(submitSample))
	api.Set("onHit", js.FuncOf(setOnHit))
	api.Set("beginEdit", js.FuncOf(beginEdit))
	api.Set("applyEdit", js.FuncOf(applyEdit))
	api.Set("commitEdit", js.FuncOf(commitEdit))
	api.Set("cancelEdit", js.FuncOf(cancelEdit))

	// Queries
	api.Set("hitTest", js.FuncOf(hitTest))
	api.Set("getTransform", js.FuncOf(getTransform))
	api.Set("getOutlines", js.FuncOf(getOutlines))
	api.Set("getVisibleBounds", js.FuncOf(getVisibleBounds))
	api.Set("getEditVertices", js.FuncOf(getEditVertices))

	js.Global().Set("plankitEngine", api)

	// Signal that WASM is ready
	js.Global().Set("plankitWasmReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}

// reset swaps in a new engine and restarts the streaming session on it.
func reset(next *engine.Engine) {
	if stopRun != nil {
		stopRun()
	}
	if edit != nil {
		edit.Cancel()
		edit = nil
	}
	eng = next
	session = eng.NewSession(emitHit)

	ctx, cancel := context.WithCancel(context.Background())
	stopRun = cancel
	go session.Run(ctx)
}

func emitHit(r engine.HitResult) {
	if onHit.Type() != js.TypeFunction {
		return
	}
	onHit.Invoke(r.SpaceID, float64(r.Seq), r.Stats.ElapsedMs)
}

func errorResult(err error) interface{} {
	return js.ValueOf(map[string]interface{}{"error": err.Error()})
}

func jsonResult(v any) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(err)
	}
	return js.ValueOf(string(data))
}

func floatArgs(args []js.Value, n int) ([]float64, bool) {
	if len(args) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = args[i].Float()
	}
	return out, true
}

func publishFloor(f *plan.Floor) interface{} {
	next := engine.New(f.ID, engine.DefaultConfig(), nil)
	snap, err := next.LoadFloor(f)
	if err != nil {
		return errorResult(err)
	}
	reset(next)
	return js.ValueOf(map[string]interface{}{
		"ok":      true,
		"version": float64(snap.Version),
		"spaces":  snap.Set.Len(),
	})
}

// --- Command Handlers ---

func loadFloor(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(map[string]interface{}{"error": "missing floor JSON"})
	}

	var f plan.Floor
	if err := json.Unmarshal([]byte(args[0].String()), &f); err != nil {
		return errorResult(err)
	}
	return publishFloor(&f)
}

func loadSampleFloor(this js.Value, args []js.Value) interface{} {
	floorID := "floor_sample"
	if len(args) > 0 && args[0].Type() == js.TypeString {
		floorID = args[0].String()
	}
	return publishFloor(plan.NewSampleFloor(floorID))
}

func setTransform(this js.Value, args []js.Value) interface{} {
	v, ok := floatArgs(args, 3)
	if !ok {
		return js.ValueOf(map[string]interface{}{"error": "expected scale, translateX, translateY"})
	}
	if _, err := session.View().Set(engine.Transform{Scale: v[0], TranslateX: v[1], TranslateY: v[2]}); err != nil {
		return errorResult(err)
	}
	return getTransform(this, nil)
}

func pan(this js.Value, args []js.Value) interface{} {
	v, ok := floatArgs(args, 2)
	if !ok {
		return nil
	}
	dz := 0.0
	if len(args) > 2 {
		dz = args[2].Float()
	}
	session.View().Update(geometry.Pt(v[0], v[1]), dz)
	return getTransform(this, nil)
}

func zoomAt(this js.Value, args []js.Value) interface{} {
	v, ok := floatArgs(args, 3)
	if !ok {
		return nil
	}
	session.View().ZoomAt(geometry.Pt(v[0], v[1]), v[2])
	return getTransform(this, nil)
}

func fit(this js.Value, args []js.Value) interface{} {
	v, ok := floatArgs(args, 2)
	if !ok {
		return nil
	}
	padding := 0.0
	if len(args) > 2 {
		padding = args[2].Float()
	}
	bounds := eng.Snapshot().PlanFloor().Bounds()
	session.View().Fit(bounds, geometry.Rect(0, 0, v[0], v[1]), padding)
	return getTransform(this, nil)
}

func submitSample(this js.Value, args []js.Value) interface{} {
	v, ok := floatArgs(args, 3)
	if !ok {
		return nil
	}
	seq := session.Submit(engine.Sample{X: v[0], Y: v[1], TimestampMs: int64(v[2])})
	return js.ValueOf(float64(seq))
}

func setOnHit(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		onHit = js.Undefined()
		return nil
	}
	onHit = args[0]
	return nil
}

func beginEdit(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(map[string]interface{}{"error": "missing space id"})
	}
	if edit != nil {
		edit.Cancel()
	}
	s, err := ed.Begin(eng, args[0].String())
	if err != nil {
		return errorResult(err)
	}
	edit = s
	return js.ValueOf(map[string]interface{}{"ok": true, "editId": s.ID()})
}

func applyEdit(this js.Value, args []js.Value) interface{} {
	if edit == nil {
		return errorResult(editor.ErrNoSession)
	}
	if len(args) < 1 {
		return js.ValueOf(map[string]interface{}{"error": "missing operation JSON"})
	}
	var op editor.Op
	if err := json.Unmarshal([]byte(args[0].String()), &op); err != nil {
		return errorResult(err)
	}
	if op.Type == editor.OpPolygonReplace {
		raw, _ := json.Marshal(op.Polygon)
		if err := plan.ValidatePolygonJSON(raw); err != nil {
			return errorResult(err)
		}
	}
	if err := edit.Apply(op); err != nil {
		return errorResult(err)
	}
	return getEditVertices(this, nil)
}

func commitEdit(this js.Value, args []js.Value) interface{} {
	if edit == nil {
		return errorResult(editor.ErrNoSession)
	}
	res, err := edit.Commit(context.Background())
	if err != nil {
		if editor.IsStale(err) {
			edit = nil
		}
		return errorResult(err)
	}
	edit = nil
	return jsonResult(res.Commit)
}

func cancelEdit(this js.Value, args []js.Value) interface{} {
	if edit != nil {
		edit.Cancel()
		edit = nil
	}
	return nil
}

// --- Query Handlers ---

func hitTest(this js.Value, args []js.Value) interface{} {
	v, ok := floatArgs(args, 2)
	if !ok {
		return js.ValueOf("")
	}
	var ts int64
	if len(args) > 2 {
		ts = int64(args[2].Float())
	}
	return js.ValueOf(session.HitTest(engine.Sample{X: v[0], Y: v[1], TimestampMs: ts}).SpaceID)
}

func getTransform(this js.Value, args []js.Value) interface{} {
	t := session.View().Current()
	return jsonResult(struct {
		engine.Transform
		Matrix []float64 `json:"matrix"`
	}{t, t.Matrix().ToSlice()})
}

func getOutlines(this js.Value, args []js.Value) interface{} {
	return jsonResult(eng.Snapshot().Outlines())
}

func getVisibleBounds(this js.Value, args []js.Value) interface{} {
	v, ok := floatArgs(args, 2)
	if !ok {
		return nil
	}
	return jsonResult(session.View().VisiblePlanBounds(geometry.Rect(0, 0, v[0], v[1])))
}

func getEditVertices(this js.Value, args []js.Value) interface{} {
	if edit == nil {
		return js.ValueOf("[]")
	}
	return jsonResult(edit.Vertices().Pairs())
}
