package bot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

type fakeAPI struct {
	mu     sync.Mutex
	calls  []string
	bodies []map[string]any
	status string
	getMes int
	hold   chan struct{} // when set, the first getMe waits for it
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.bodies = append(f.bodies, body)
	status := f.status
	if method == "getMe" {
		f.getMes++
	}
	hold := f.hold
	first := method == "getMe" && f.getMes == 1
	f.mu.Unlock()
	if first && hold != nil {
		<-hold
	}

	var result string
	switch method {
	case "sendMessage":
		result = `{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}`
	case "getChatMember":
		result = `{"status":"` + status + `","user":{"id":1,"is_bot":false,"first_name":"U"}}`
	case "getMe":
		result = `{"id":1,"is_bot":true,"first_name":"Bot","username":"cashback_test_bot"}`
	default:
		result = `true`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":`+result+`}`)
}

func (f *fakeAPI) snapshot() ([]string, []map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([]map[string]any(nil), f.bodies...)
}

func newTestGateway(t *testing.T, api *fakeAPI) *Gateway {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	g, err := NewGateway(testToken, 100, telego.WithAPIServer(srv.URL), telego.WithDiscardLogger())
	require.NoError(t, err)
	return g
}

func TestGatewayNotifyAndWebhook(t *testing.T) {
	api := &fakeAPI{}
	g := newTestGateway(t, api)
	ctx := context.Background()

	require.NoError(t, g.Notify(ctx, 42, "hello"))
	require.NoError(t, g.SetWebhook(ctx, "https://example.com/webhook", "s3cret"))
	assert.Equal(t, "cashback_test_bot", g.Username(ctx))
	assert.Equal(t, "cashback_test_bot", g.Username(ctx))

	calls, bodies := api.snapshot()
	assert.Equal(t, []string{"sendMessage", "setWebhook", "getMe"}, calls)
	assert.Equal(t, "hello", bodies[0]["text"])
	assert.Equal(t, "s3cret", bodies[1]["secret_token"])
}

func TestGatewayIsMember(t *testing.T) {
	api := &fakeAPI{status: "member"}
	g := newTestGateway(t, api)

	ok, err := g.IsMember(context.Background(), "news", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	_, bodies := api.snapshot()
	assert.Equal(t, "@news", bodies[0]["chat_id"])

	api.mu.Lock()
	api.status = "left"
	api.mu.Unlock()
	ok, err = g.IsMember(context.Background(), "@news", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUsernameDoesNotWaitOnSlowLookup(t *testing.T) {
	api := &fakeAPI{hold: make(chan struct{})}
	g := newTestGateway(t, api)
	ctx := context.Background()

	slow := make(chan string, 1)
	go func() { slow <- g.Username(ctx) }()
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.getMes == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "cashback_test_bot", g.Username(ctx), "answered while the first lookup hangs")
	close(api.hold)
	assert.Equal(t, "cashback_test_bot", <-slow)

	assert.Equal(t, "cashback_test_bot", g.Username(ctx))
	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, 2, api.getMes, "cached after the first success")
}
