package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/msgbridge/internal/delivery"
	"github.com/nerrad567/msgbridge/internal/infrastructure/config"
	"github.com/nerrad567/msgbridge/internal/infrastructure/logging"
	"github.com/nerrad567/msgbridge/internal/message"
	"github.com/nerrad567/msgbridge/internal/relay"
	"github.com/nerrad567/msgbridge/internal/service"
)

// fakeBroker is an in-memory service.Broker for handler tests.
type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	registry   *relay.TopicRegistry
	published  map[string][][]byte
	publishErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		connected: true,
		registry:  relay.NewTopicRegistry(),
		published: make(map[string][][]byte),
	}
}

func (f *fakeBroker) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published[topic] = append(f.published[topic], payload)
	return nil
}

func (f *fakeBroker) Subscribe(topic string) error {
	if topic == "" {
		return relay.ErrEmptyTopic
	}
	f.registry.Add(topic)
	return nil
}

func (f *fakeBroker) Unsubscribe(topic string) error {
	if topic == "" {
		return relay.ErrEmptyTopic
	}
	f.registry.Remove(topic)
	return nil
}

func (f *fakeBroker) SubscribedTopics() []string { return f.registry.Snapshot() }
func (f *fakeBroker) IsSubscribed(topic string) bool { return f.registry.Matches(topic) }

func (f *fakeBroker) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// newTestServer wires a full server around an in-memory service and returns
// it with an httptest listener in front of the router.
func newTestServer(t *testing.T) (*httptest.Server, *service.BridgeService, *fakeBroker) {
	t.Helper()

	store := message.NewStore()
	broker := newFakeBroker()
	dispatcher := delivery.New(16, logging.Default())
	t.Cleanup(dispatcher.Close)

	svc := service.New(store, broker, dispatcher, logging.Default(), 20*time.Millisecond)

	cfg := config.Default()
	srv, err := New(Deps{
		Config:  cfg,
		Logger:  logging.Default(),
		Service: svc,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv.ctx = ctx
	t.Cleanup(cancel)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	return ts, svc, broker
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding GET %s response: %v", path, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshalling request body: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func doDelete(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("building DELETE request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s failed: %v", path, err)
	}
	return resp
}

// =============================================================================
// Health and status
// =============================================================================

func TestHandleHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var body map[string]any
	resp := getJSON(t, ts, "/api/v1/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestHandleStatus(t *testing.T) {
	ts, svc, _ := newTestServer(t)

	if err := svc.SubscribeToTopic("test/messages"); err != nil {
		t.Fatalf("SubscribeToTopic failed: %v", err)
	}
	if _, err := svc.SendToTopic("test/messages", "hello", ""); err != nil {
		t.Fatalf("SendToTopic failed: %v", err)
	}

	var status service.Status
	resp := getJSON(t, ts, "/api/v1/status", &status)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want 200", resp.StatusCode)
	}
	if !status.Connected {
		t.Error("expected connected status")
	}
	if len(status.SubscribedTopics) != 1 || status.SubscribedTopics[0] != "test/messages" {
		t.Errorf("subscribed topics = %v, want [test/messages]", status.SubscribedTopics)
	}
	if status.MessageCount != 1 {
		t.Errorf("message count = %d, want 1", status.MessageCount)
	}
}

// =============================================================================
// Messages
// =============================================================================

func TestSendMessage(t *testing.T) {
	ts, _, broker := newTestServer(t)

	resp := postJSON(t, ts, "/api/v1/messages", sendMessageRequest{
		Topic:   "test/messages",
		Content: "hello",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d, want 201", resp.StatusCode)
	}

	var msg message.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if msg.Sender != message.SenderAPI {
		t.Errorf("sender = %q, want %q", msg.Sender, message.SenderAPI)
	}
	if msg.ID == "" {
		t.Error("expected non-empty message id")
	}

	broker.mu.Lock()
	published := len(broker.published["test/messages"])
	broker.mu.Unlock()
	if published != 1 {
		t.Errorf("broker publish count = %d, want 1", published)
	}
}

func TestSendMessageEmptyTopic(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts, "/api/v1/messages", sendMessageRequest{Content: "hello"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSendMessageBrokerFailure(t *testing.T) {
	ts, _, broker := newTestServer(t)

	broker.mu.Lock()
	broker.publishErr = fmt.Errorf("connection lost")
	broker.mu.Unlock()

	resp := postJSON(t, ts, "/api/v1/messages", sendMessageRequest{
		Topic:   "test/messages",
		Content: "hello",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestGetMessages(t *testing.T) {
	ts, svc, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		if _, err := svc.SendToTopic("test/messages", fmt.Sprintf("msg %d", i), ""); err != nil {
			t.Fatalf("SendToTopic failed: %v", err)
		}
	}
	if _, err := svc.SendToTopic("other/topic", "elsewhere", ""); err != nil {
		t.Fatalf("SendToTopic failed: %v", err)
	}

	var body struct {
		Topic    string            `json:"topic"`
		Messages []message.Message `json:"messages"`
		Count    int               `json:"count"`
	}
	resp := getJSON(t, ts, "/api/v1/messages?topic="+url.QueryEscape("test/messages"), &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Count != 3 {
		t.Fatalf("count = %d, want 3", body.Count)
	}
	for _, m := range body.Messages {
		if m.Topic != "test/messages" {
			t.Errorf("message topic = %q, want test/messages", m.Topic)
		}
	}
}

func TestGetMessagesMissingTopic(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := getJSON(t, ts, "/api/v1/messages", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetMessagesInvalidLimit(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := getJSON(t, ts, "/api/v1/messages?topic=test&limit=abc", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestClearMessagesByTopic(t *testing.T) {
	ts, svc, _ := newTestServer(t)

	if _, err := svc.SendToTopic("keep/topic", "stays", ""); err != nil {
		t.Fatalf("SendToTopic failed: %v", err)
	}
	if _, err := svc.SendToTopic("drop/topic", "goes", ""); err != nil {
		t.Fatalf("SendToTopic failed: %v", err)
	}

	resp := doDelete(t, ts, "/api/v1/messages?topic="+url.QueryEscape("drop/topic"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Cleared int `json:"cleared"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Cleared != 1 {
		t.Errorf("cleared = %d, want 1", body.Cleared)
	}

	if got := len(svc.QueryTopic("keep/topic", 0)); got != 1 {
		t.Errorf("keep/topic has %d messages after clear, want 1", got)
	}
	if got := len(svc.QueryTopic("drop/topic", 0)); got != 0 {
		t.Errorf("drop/topic has %d messages after clear, want 0", got)
	}
}

func TestClearAllMessages(t *testing.T) {
	ts, svc, _ := newTestServer(t)

	if _, err := svc.SendToTopic("a", "1", ""); err != nil {
		t.Fatalf("SendToTopic failed: %v", err)
	}
	if _, err := svc.SendToTopic("b", "2", ""); err != nil {
		t.Fatalf("SendToTopic failed: %v", err)
	}

	resp := doDelete(t, ts, "/api/v1/messages")
	defer resp.Body.Close()

	var body struct {
		Cleared int `json:"cleared"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Cleared != 2 {
		t.Errorf("cleared = %d, want 2", body.Cleared)
	}
}

func TestListTopics(t *testing.T) {
	ts, svc, _ := newTestServer(t)

	if _, err := svc.SendToTopic("sensors/temp", "21.5", ""); err != nil {
		t.Fatalf("SendToTopic failed: %v", err)
	}
	if err := svc.SubscribeToTopic("sensors/+"); err != nil {
		t.Fatalf("SubscribeToTopic failed: %v", err)
	}

	var body struct {
		Topics []message.TopicInfo `json:"topics"`
		Count  int                 `json:"count"`
	}
	resp := getJSON(t, ts, "/api/v1/topics", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Count != 1 {
		t.Fatalf("count = %d, want 1", body.Count)
	}
	if body.Topics[0].Name != "sensors/temp" {
		t.Errorf("topic name = %q, want sensors/temp", body.Topics[0].Name)
	}
	if !body.Topics[0].Subscribed {
		t.Error("expected sensors/temp to match the sensors/+ subscription")
	}
}

// =============================================================================
// Subscriptions
// =============================================================================

func TestSubscribeAndList(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts, "/api/v1/subscriptions", subscribeRequest{Topic: "sensors/+"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("subscribe status = %d, want 201", resp.StatusCode)
	}

	var body struct {
		Subscriptions []string `json:"subscriptions"`
		Count         int      `json:"count"`
	}
	getJSON(t, ts, "/api/v1/subscriptions", &body)
	if body.Count != 1 || body.Subscriptions[0] != "sensors/+" {
		t.Errorf("subscriptions = %v, want [sensors/+]", body.Subscriptions)
	}
}

func TestSubscribeEmptyTopic(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts, "/api/v1/subscriptions", subscribeRequest{})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUnsubscribe(t *testing.T) {
	ts, svc, _ := newTestServer(t)

	if err := svc.SubscribeToTopic("test/messages"); err != nil {
		t.Fatalf("SubscribeToTopic failed: %v", err)
	}

	resp := doDelete(t, ts, "/api/v1/subscriptions?topic="+url.QueryEscape("test/messages"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unsubscribe status = %d, want 200", resp.StatusCode)
	}

	if got := svc.QuerySubscribedTopics(); len(got) != 0 {
		t.Errorf("subscriptions after unsubscribe = %v, want none", got)
	}
}

func TestUnsubscribeMissingTopic(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := doDelete(t, ts, "/api/v1/subscriptions")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

// =============================================================================
// WebSocket stream
// =============================================================================

func dialWS(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	var frame WSMessage
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("reading websocket frame: %v", err)
	}
	return frame
}

func TestWebSocketStreamsMatchingTopic(t *testing.T) {
	ts, svc, _ := newTestServer(t)

	conn := dialWS(t, ts, "?topic="+url.QueryEscape("test/messages"))

	// Give the stream goroutine time to register with the dispatcher.
	waitForSubscribers(t, svc, 1)

	if _, err := svc.SendToTopic("test/messages", "hello", ""); err != nil {
		t.Fatalf("SendToTopic failed: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != WSTypeMessage {
		t.Errorf("frame type = %q, want %q", frame.Type, WSTypeMessage)
	}
	if frame.Topic != "test/messages" {
		t.Errorf("frame topic = %q, want test/messages", frame.Topic)
	}
}

func TestWebSocketAllTopics(t *testing.T) {
	ts, svc, _ := newTestServer(t)

	conn := dialWS(t, ts, "")
	waitForSubscribers(t, svc, 1)

	if _, err := svc.SendToTopic("any/topic", "broadcast", ""); err != nil {
		t.Fatalf("SendToTopic failed: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Topic != "any/topic" {
		t.Errorf("frame topic = %q, want any/topic", frame.Topic)
	}
}

func TestWebSocketActivityStream(t *testing.T) {
	ts, svc, _ := newTestServer(t)

	conn := dialWS(t, ts, "?stream=activity")

	// Wait for the activity sampler to record its baseline before the new
	// topic appears.
	time.Sleep(50 * time.Millisecond)

	if _, err := svc.SendToTopic("fresh/topic", "first", ""); err != nil {
		t.Fatalf("SendToTopic failed: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != WSTypeActivity {
		t.Errorf("frame type = %q, want %q", frame.Type, WSTypeActivity)
	}
	if frame.Topic != "fresh/topic" {
		t.Errorf("frame topic = %q, want fresh/topic", frame.Topic)
	}
}

// waitForSubscribers polls until the dispatcher reports n live streams.
func waitForSubscribers(t *testing.T, svc *service.BridgeService, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.Status().Connected && svc.StreamCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d stream subscriber(s)", n)
}
