package tool

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cryobank/agent/approval"
	"cryobank/agent/llm"
	"cryobank/contract"
	"cryobank/inventory"
	"cryobank/ops"
	"cryobank/plan"
	"cryobank/store"
)

func testOps(t *testing.T) *ops.Service {
	t.Helper()
	dir := t.TempDir()
	cfg := store.Config{
		Path:       filepath.Join(dir, "inventory.yaml"),
		BackupDir:  filepath.Join(dir, "backups"),
		BackupKeep: 10,
		AuditPath:  filepath.Join(dir, "audit.jsonl"),
	}
	st := store.New(cfg, zerolog.Nop())
	if err := st.Initialize(inventory.Meta{BoxCount: 3, Layout: inventory.BoxLayout{Rows: 9, Cols: 9}}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return ops.New(st, zerolog.Nop())
}

func testActor() contract.ActorContext {
	return contract.NewActorContext("agent", "chat", "session-test", "trace-test")
}

func call(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: "call-1", Name: name, Arguments: args}
}

func seed(t *testing.T, service *ops.Service) int {
	t.Helper()
	res := service.AddEntry(context.Background(), testActor(), ops.AddEntryRequest{
		CellLine: "HEK293T", Box: 1, Positions: []int{5, 6}, FrozenAt: "2025-01-15",
	})
	if !res.OK {
		t.Fatalf("seed: %s", res.Message)
	}
	return res.Result["id"].(int)
}

func TestDispatchUnknownTool(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(testOps(t), nil, nil, zerolog.Nop())
	res := d.Dispatch(context.Background(), testActor(), call("defrost_everything", "{}"))
	if res.OK || res.ErrorCode != contract.CodeUnknownTool {
		t.Fatalf("expected unknown_tool, got %+v", res)
	}
	if res.Hint == "" {
		t.Fatal("unknown tool should hint at the available catalog")
	}
}

func TestDispatchInvalidArguments(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(testOps(t), nil, nil, zerolog.Nop())

	res := d.Dispatch(context.Background(), testActor(), call(ToolRecommendPositions, `{"strategy":"consecutive"}`))
	if res.OK || res.ErrorCode != contract.CodeInvalidToolInput {
		t.Fatalf("missing required count should fail: %+v", res)
	}
	if res.Hint == "" {
		t.Fatal("rejection must carry the expected schema as a hint")
	}

	res = d.Dispatch(context.Background(), testActor(), call(ToolSearchRecords, `{"box":"not-a-number"}`))
	if res.OK || res.ErrorCode != contract.CodeInvalidToolInput {
		t.Fatalf("type mismatch should fail: %+v", res)
	}

	res = d.Dispatch(context.Background(), testActor(), call(ToolSearchRecords, `not json`))
	if res.OK || res.ErrorCode != contract.CodeInvalidToolInput {
		t.Fatalf("malformed JSON should fail: %+v", res)
	}
}

func TestDispatchReadTools(t *testing.T) {
	t.Parallel()

	service := testOps(t)
	id := seed(t, service)
	d := NewDispatcher(service, nil, nil, zerolog.Nop())
	ctx := context.Background()

	res := d.Dispatch(ctx, testActor(), call(ToolSearchRecords, `{"query":"hek"}`))
	if !res.OK || res.Result["count"] != 1 {
		t.Fatalf("search: %+v", res)
	}
	res = d.Dispatch(ctx, testActor(), call(ToolListEmptyPositions, `{"box":1}`))
	if !res.OK || res.Result["empty_count"] != 79 {
		t.Fatalf("empty positions: %+v", res)
	}
	res = d.Dispatch(ctx, testActor(), call(ToolGetRawEntries, `{"ids":[`+itoa(id)+`]}`))
	if !res.OK {
		t.Fatalf("raw entries: %+v", res)
	}
	res = d.Dispatch(ctx, testActor(), call(ToolGenerateStats, ""))
	if !res.OK {
		t.Fatalf("stats: %+v", res)
	}
}

func TestDispatchWritesDirectlyWithoutPlanStore(t *testing.T) {
	t.Parallel()

	service := testOps(t)
	id := seed(t, service)
	d := NewDispatcher(service, nil, nil, zerolog.Nop())

	res := d.Dispatch(context.Background(), testActor(),
		call(ToolRecordEvent, `{"record_id":`+itoa(id)+`,"action":"取出","positions":"5","date":"2025-02-01"}`))
	if !res.OK {
		t.Fatalf("direct write: %+v", res)
	}
	if res.Staged {
		t.Fatal("no plan store configured, nothing should be staged")
	}

	doc, _ := service.Store().Load()
	rec := inventory.FindRecord(doc.Records, id)
	if len(rec.Events) != 1 || rec.Events[0].Action != inventory.ActionTakeout {
		t.Fatalf("event not recorded: %+v", rec.Events)
	}
}

func TestDispatchStagesWritesWhenPlanStoreConfigured(t *testing.T) {
	t.Parallel()

	service := testOps(t)
	id := seed(t, service)
	plans := plan.NewStore(nil)
	d := NewDispatcher(service, plans, nil, zerolog.Nop())

	res := d.Dispatch(context.Background(), testActor(),
		call(ToolRecordEvent, `{"record_id":`+itoa(id)+`,"action":"takeout","positions":"5-6","date":"2025-02-01"}`))
	if !res.OK || !res.Staged {
		t.Fatalf("expected staged proposal, got %+v", res)
	}
	if plans.Len() != 2 {
		t.Fatalf("expected one staged item per position, got %d", plans.Len())
	}

	// The document is untouched until approval.
	doc, _ := service.Store().Load()
	rec := inventory.FindRecord(doc.Records, id)
	if len(rec.Events) != 0 {
		t.Fatalf("staging must not write: %+v", rec.Events)
	}
}

func TestDispatchStageBlockedOnConflict(t *testing.T) {
	t.Parallel()

	service := testOps(t)
	seed(t, service) // occupies box 1 positions 5,6
	plans := plan.NewStore(nil)
	d := NewDispatcher(service, plans, nil, zerolog.Nop())

	res := d.Dispatch(context.Background(), testActor(),
		call(ToolAddEntry, `{"cell_line":"HeLa","box":1,"positions":"6"}`))
	if res.OK || res.ErrorCode != contract.CodeStageBlocked {
		t.Fatalf("expected stage_blocked, got %+v", res)
	}
	if plans.Len() != 0 {
		t.Fatal("blocked proposals must not enter the queue")
	}
}

func TestDispatchStagedThenApprovedApplies(t *testing.T) {
	t.Parallel()

	service := testOps(t)
	plans := plan.NewStore(nil)
	d := NewDispatcher(service, plans, nil, zerolog.Nop())
	exec := plan.NewExecutor(plans, service, zerolog.Nop())
	ctx := context.Background()

	res := d.Dispatch(ctx, testActor(),
		call(ToolAddEntry, `{"cell_line":"HeLa","box":2,"positions":"30-32","frozen_at":"2025-03-01"}`))
	if !res.OK || !res.Staged {
		t.Fatalf("stage: %+v", res)
	}

	results := exec.Approve(ctx, testActor(), nil)
	if len(results) != 1 || !results[0].Result.OK {
		t.Fatalf("approve: %+v", results)
	}
	search := service.SearchRecords(ops.SearchRequest{Box: 2})
	if search.Result["count"] != 1 {
		t.Fatalf("approved add did not land: %+v", search.Result)
	}
}

func TestDispatchManageStaged(t *testing.T) {
	t.Parallel()

	service := testOps(t)
	id := seed(t, service)
	plans := plan.NewStore(nil)
	d := NewDispatcher(service, plans, nil, zerolog.Nop())
	ctx := context.Background()

	d.Dispatch(ctx, testActor(),
		call(ToolRecordEvent, `{"record_id":`+itoa(id)+`,"action":"thaw","positions":"5"}`))

	res := d.Dispatch(ctx, testActor(), call(ToolManageStaged, `{"action":"list"}`))
	if !res.OK || res.Result["count"] != 1 {
		t.Fatalf("list staged: %+v", res)
	}
	res = d.Dispatch(ctx, testActor(), call(ToolManageStaged, `{"action":"remove","index":0}`))
	if !res.OK {
		t.Fatalf("remove staged: %+v", res)
	}
	if plans.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", plans.Len())
	}
}

func TestDispatchManageStagedWithoutPlanStore(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(testOps(t), nil, nil, zerolog.Nop())
	res := d.Dispatch(context.Background(), testActor(), call(ToolManageStaged, `{"action":"list"}`))
	if res.OK || res.ErrorCode != contract.CodeNoPlanStore {
		t.Fatalf("expected no_plan_store, got %+v", res)
	}
}

func TestDispatchManageBoxesConfirmFlow(t *testing.T) {
	t.Parallel()

	service := testOps(t)
	broker := approval.NewBroker(time.Second, nil)
	d := NewDispatcher(service, nil, broker, zerolog.Nop())
	ctx := context.Background()

	done := make(chan contract.Result, 1)
	go func() {
		done <- d.Dispatch(ctx, testActor(), call(ToolManageBoxes, `{"box_count":5}`))
	}()
	req := waitForPending(t, broker)
	if req.Kind != approval.KindConfirm {
		t.Fatalf("expected confirm request, got %+v", req)
	}
	if err := broker.Answer(req.ID, approval.Answer{Approved: true}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	res := <-done
	if !res.OK || res.Result["box_count"] != 5 {
		t.Fatalf("confirmed manage_boxes: %+v", res)
	}
}

func TestDispatchManageBoxesDeclined(t *testing.T) {
	t.Parallel()

	service := testOps(t)
	broker := approval.NewBroker(time.Second, nil)
	d := NewDispatcher(service, nil, broker, zerolog.Nop())

	done := make(chan contract.Result, 1)
	go func() {
		done <- d.Dispatch(context.Background(), testActor(), call(ToolManageBoxes, `{"box_count":1}`))
	}()
	req := waitForPending(t, broker)
	if err := broker.Answer(req.ID, approval.Answer{Approved: false}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	res := <-done
	if res.OK || res.ErrorCode != contract.CodeUserCancelled {
		t.Fatalf("expected user_cancelled, got %+v", res)
	}

	doc, _ := service.Store().Load()
	if doc.Meta.BoxCount != 3 {
		t.Fatalf("declined change must not apply, box count %d", doc.Meta.BoxCount)
	}
}

func TestDispatchQuestionTimeout(t *testing.T) {
	t.Parallel()

	broker := approval.NewBroker(20*time.Millisecond, nil)
	d := NewDispatcher(testOps(t), nil, broker, zerolog.Nop())

	res := d.Dispatch(context.Background(), testActor(),
		call(ToolQuestion, `{"question":"which cell line did you mean?"}`))
	if res.OK || res.ErrorCode != contract.CodeQuestionTimeout {
		t.Fatalf("expected question_timeout, got %+v", res)
	}
}

func TestCatalogSpecsCoverEveryTool(t *testing.T) {
	t.Parallel()

	specs := Specs()
	if len(specs) != len(catalog) {
		t.Fatalf("specs/catalog mismatch: %d vs %d", len(specs), len(catalog))
	}
	for _, spec := range specs {
		def, ok := Lookup(spec.Name)
		if !ok {
			t.Fatalf("spec %q missing from lookup", spec.Name)
		}
		if def.Parameters == nil {
			t.Fatalf("tool %q has no parameter schema", spec.Name)
		}
	}
	if def, _ := Lookup(ToolQuestion); !def.Alone {
		t.Fatal("question must be marked lone-call")
	}
	if def, _ := Lookup(ToolManageBoxes); !def.Confirm || !def.Alone {
		t.Fatal("manage_boxes must require confirmation and run alone")
	}
	for _, name := range []string{ToolAddEntry, ToolEditEntry, ToolRecordEvent, ToolBatchEvents, ToolRollback} {
		if def, _ := Lookup(name); !def.Write {
			t.Fatalf("%s must be write-capable", name)
		}
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func waitForPending(t *testing.T, b *approval.Broker) approval.Request {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if req, ok := b.Pending(); ok {
			return req
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no request became pending")
	return approval.Request{}
}
