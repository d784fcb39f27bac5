package wsapi_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chomp-dev/chomp/pkg/ingester"
	"github.com/chomp-dev/chomp/pkg/loader/wsapi"
	"github.com/chomp-dev/chomp/pkg/transformer"
)

func wsTarget(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func buildIngester(t *testing.T, target, reducer string) *ingester.Ingester {
	t.Helper()
	fld := ingester.FieldSpec{}
	fld.Name = "price"
	fld.Type = ingester.TypeFloat64
	fld.Reducer = reducer

	spec := ingester.IngesterSpec{
		Kind:         ingester.KindWSAPI,
		Interval:     "s10",
		ResourceType: ingester.ResourceValue,
		Target:       target,
		Fields:       []ingester.FieldSpec{fld},
	}
	spec.Name = "eth_price_stream"
	spec.ResolveInheritance()
	require.NoError(t, spec.Validate())
	return ingester.New(spec)
}

func echoServer(t *testing.T, messages [][]byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, m); err != nil {
				return
			}
		}
		// keep the connection open briefly so the client's read loop
		// has time to process before the test tears down the server.
		time.Sleep(100 * time.Millisecond)
	}))
}

func TestAcquireCollectsMessagesIntoEpochWithoutReducer(t *testing.T) {
	srv := echoServer(t, [][]byte{[]byte(`{"price": 1.5}`), []byte(`{"price": 2.5}`)})
	defer srv.Close()

	ld := wsapi.New(logrus.New(), transformer.New(nil))
	defer ld.Close()

	ing := buildIngester(t, wsTarget(t, srv), "")
	ing.Field("price").Selector = ".price"

	require.Eventually(t, func() bool {
		raw, _, err := ld.Acquire(t.Context(), ing)
		if err != nil {
			return false
		}
		m, ok := raw.(map[string]interface{})
		if !ok {
			return false
		}
		list, ok := m["price"].([]interface{})
		return ok && len(list) == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAcquireAppliesReducer(t *testing.T) {
	srv := echoServer(t, [][]byte{[]byte(`{"price": 1.0}`), []byte(`{"price": 3.0}`)})
	defer srv.Close()

	ld := wsapi.New(logrus.New(), transformer.New(nil))
	defer ld.Close()

	ing := buildIngester(t, wsTarget(t, srv), "mean")
	ing.Field("price").Selector = ".price"

	require.Eventually(t, func() bool {
		raw, _, err := ld.Acquire(t.Context(), ing)
		if err != nil {
			return false
		}
		m, ok := raw.(map[string]interface{})
		return ok && m["price"] != nil
	}, 2*time.Second, 20*time.Millisecond)

	raw, _, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)
	m := raw.(map[string]interface{})
	assert.NotNil(t, m["price"])
}

func TestAcquireReusesOneConnectionPerTarget(t *testing.T) {
	srv := echoServer(t, [][]byte{[]byte(`{"price": 9.0}`)})
	defer srv.Close()

	ld := wsapi.New(logrus.New(), transformer.New(nil))
	defer ld.Close()

	target := wsTarget(t, srv)
	ingA := buildIngester(t, target, "")
	ingA.Field("price").Selector = ".price"
	ingB := buildIngester(t, target, "")
	ingB.Field("price").Selector = ".price"
	ingB.Name = "eth_price_stream_2"

	_, _, err := ld.Acquire(t.Context(), ingA)
	require.NoError(t, err)
	_, _, err = ld.Acquire(t.Context(), ingB)
	require.NoError(t, err)
}

func TestRunConnSendsParamsOnConnect(t *testing.T) {
	received := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ld := wsapi.New(logrus.New(), transformer.New(nil))
	defer ld.Close()

	ing := buildIngester(t, wsTarget(t, srv), "")
	ing.Field("price").Selector = ".price"
	ing.Params = &ingester.ParamsValue{Map: map[string]string{"action": "subscribe"}}

	_, _, err := ld.Acquire(t.Context(), ing)
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"action":"subscribe"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received a subscription params message")
	}
}
