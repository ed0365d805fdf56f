package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dynamic-flea-price/internal/catalog"
	"dynamic-flea-price/internal/config"
	"dynamic-flea-price/internal/flea"
	"dynamic-flea-price/internal/pricing"
	"dynamic-flea-price/internal/ragfair"
	"dynamic-flea-price/internal/service"
	"dynamic-flea-price/internal/storage"
)

const (
	tplAmmo = "59e6906286f7746c9f75e847"
	catAmmo = "5b47574386f77428ca22b33b"
)

type testEnv struct {
	srv    *Server
	engine *flea.Engine
	book   *ragfair.MemoryBook
	flea   *config.FleaConfig
}

func testServer(t *testing.T) testEnv {
	t.Helper()
	logger := zerolog.Nop()

	cat := catalog.New(
		[]catalog.HandbookCategory{{ID: catAmmo}},
		[]catalog.HandbookItem{{ID: tplAmmo, ParentID: catAmmo, Price: 1000}},
	).WithPrices(map[string]float64{tplAmmo: 2000})

	fleaCfg := config.DefaultFlea()
	fleaCfg.IncreaseMultiplierPerItem[tplAmmo] = 2

	store := storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	engine := flea.New(fleaCfg, cat, store, flea.Options{}, logger)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	svc := service.New(&config.Config{}, engine, nil, store, nil, cat, logger)
	book := ragfair.NewMemoryBook()
	hooks := ragfair.NewHooks(fleaCfg, svc, book, book, ragfair.Options{MinUserLevel: 15}, logger)
	pricer := pricing.New(cat, engine, pricing.Options{TraderBuyRatio: 0.6, MaxMarkupPct: 4, Rand: func() float64 { return 0 }}, logger)

	srv := New(Deps{
		Engine:  engine,
		Ticker:  svc,
		Hooks:   hooks,
		Book:    book,
		Pricer:  pricer,
		Version: "test",

		StreamInterval: 10 * time.Millisecond,
	}, logger)
	return testEnv{srv: srv, engine: engine, book: book, flea: fleaCfg}
}

func do(t *testing.T, srv http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHealth(t *testing.T) {
	env := testServer(t)
	w, resp := do(t, env.srv, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["status"] != "ok" || resp["version"] != "test" || resp["initialised"] != true {
		t.Fatalf("resp = %v", resp)
	}
}

func TestPurchaseRaisesPrice(t *testing.T) {
	env := testServer(t)

	w, resp := do(t, env.srv, "POST", "/api/trades/purchase", `{"tpl":"`+tplAmmo+`","count":3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	if resp["recorded"] != true || resp["multiplier"] != 6.0 {
		t.Fatalf("resp = %v", resp)
	}

	_, resp = do(t, env.srv, "GET", "/api/multipliers/"+tplAmmo, "")
	if resp["priceFactor"] != 6.0 {
		t.Fatalf("resp = %v", resp)
	}

	body := `{"currency":"` + catalog.RoublesTemplate + `","items":[{"_id":"a","_tpl":"` + tplAmmo + `"}]}`
	w, resp = do(t, env.srv, "POST", "/api/offers/price", body)
	if w.Code != http.StatusOK || resp["price"] != 12000.0 {
		t.Fatalf("status = %d resp = %v", w.Code, resp)
	}

	_, resp = do(t, env.srv, "GET", "/api/multipliers", "")
	items, _ := resp["itemMultiplier"].(map[string]any)
	if items[tplAmmo] != 6.0 {
		t.Fatalf("resp = %v", resp)
	}
}

func TestPurchaseInvalid(t *testing.T) {
	env := testServer(t)
	w, _ := do(t, env.srv, "POST", "/api/trades/purchase", `{"tpl":"","count":1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	w, _ = do(t, env.srv, "POST", "/api/trades/purchase", `{nope`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestOfferPriceUnknownCurrency(t *testing.T) {
	env := testServer(t)
	w, _ := do(t, env.srv, "POST", "/api/offers/price", `{"currency":"nope","items":[{"_id":"a","_tpl":"`+tplAmmo+`"}]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestValidateOffer(t *testing.T) {
	env := testServer(t)
	body := `{"items":[{"_id":"a","_tpl":"` + tplAmmo + `"}]}`

	_, resp := do(t, env.srv, "POST", "/api/offers/validate", body)
	if resp["ok"] != true {
		t.Fatalf("gate off: %v", resp)
	}

	env.flea.OnlyFoundInRaidForFleaOffers = true
	_, resp = do(t, env.srv, "POST", "/api/offers/validate", body)
	warnings, _ := resp["warnings"].([]any)
	if resp["ok"] != false || len(warnings) != 1 {
		t.Fatalf("gate on: %v", resp)
	}
	first := warnings[0].(map[string]any)
	if first["code"] != 228.0 || first["errmsg"] != ragfair.MessageOnlyFIR {
		t.Fatalf("warning = %v", first)
	}
}

func TestCompleteOfferLowersPressure(t *testing.T) {
	env := testServer(t)
	body := `{"sessionId":"s1","boughtAmount":2,"offer":{"_id":"o1","items":[{"_id":"a","_tpl":"` + tplAmmo + `","upd":{"StackObjectsCount":2}}]}}`

	w, _ := do(t, env.srv, "POST", "/api/offers/complete", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	// 2 units x sell scale 2 x weight 2
	if got := env.engine.ItemMultiplier(tplAmmo); got != -8 {
		t.Fatalf("multiplier = %v, want -8", got)
	}

	w, _ = do(t, env.srv, "POST", "/api/offers/complete", `{"sessionId":"s1","offerId":"o1"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestProcessProfiles(t *testing.T) {
	env := testServer(t)
	now := time.Now().Unix()
	body := `{
		"profiles":[{"sessionId":"s1","level":30,"hasRagfairInfo":true}],
		"offers":{"s1":[{"_id":"o1","summaryCost":500,"endTime":` + itoa(now+3600) + `,"items":[{"_id":"a","_tpl":"` + tplAmmo + `"}],"sellResults":[{"sellTime":` + itoa(now-5) + `}]}]}
	}`

	w, resp := do(t, env.srv, "POST", "/api/profiles/process", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	if resp["processed"] != 1.0 {
		t.Fatalf("resp = %v", resp)
	}
	p, _ := env.book.Profile("s1")
	if p.Rating != 500 {
		t.Fatalf("rating = %v", p.Rating)
	}
	if env.engine.ItemMultiplier(tplAmmo) != -4 {
		t.Fatalf("multiplier = %v", env.engine.ItemMultiplier(tplAmmo))
	}

	w, resp = do(t, env.srv, "POST", "/api/profiles/process", "")
	if w.Code != http.StatusOK || resp["processed"] != 1.0 {
		t.Fatalf("empty body sweep: %d %v", w.Code, resp)
	}
}

func TestTick(t *testing.T) {
	env := testServer(t)
	do(t, env.srv, "POST", "/api/trades/purchase", `{"tpl":"`+tplAmmo+`","count":50}`)

	w, _ := do(t, env.srv, "POST", "/api/tick", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// 100 decays by 1%
	if got := env.engine.ItemMultiplier(tplAmmo); got != 99 {
		t.Fatalf("multiplier = %v, want 99", got)
	}
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestStreamPushesChanges(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first streamMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.Type != "multipliers" || len(first.State.ItemMultiplier) != 0 {
		t.Fatalf("initial = %+v", first)
	}

	if !env.engine.RecordTransaction(context.Background(), tplAmmo, 3) {
		t.Fatal("transaction should be recorded")
	}

	var next streamMessage
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.Revision <= first.Revision || next.State.ItemMultiplier[tplAmmo] != 6 {
		t.Fatalf("update = %+v", next)
	}
}
