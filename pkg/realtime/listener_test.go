package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sejaconnect/connect/pkg/event"
)

// sseEvent はテストサーバーが配信する1件のSSEイベントを表す。
func sseEvent(t *testing.T, e *event.Event) string {
	t.Helper()

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("イベントのシリアライズに失敗: %v", err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.EventType, data)
}

// newTestFeed は指定のSSEボディを配信するテストサーバーを起動する。
func newTestFeed(t *testing.T, body string, requests *atomic.Int64) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": connected\n\n")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestListener_Stream(t *testing.T) {
	t.Parallel()

	t.Run("予約作成イベントがコールバックへ配信されること", func(t *testing.T) {
		t.Parallel()

		e, err := event.New("booking-1", event.AggregateTypeBooking, event.TypeBookingCreated,
			event.BookingCreatedData{ID: "booking-1", Name: "Maria", Status: "pending"})
		if err != nil {
			t.Fatal(err)
		}
		ts := newTestFeed(t, sseEvent(t, e), nil)

		received := make(chan event.BookingCreatedData, 1)
		l := NewListener(ts.URL, "test-token")
		l.HandleBookingCreated(func(data event.BookingCreatedData) {
			received <- data
		})
		l.Start(context.Background())
		defer l.Stop()

		select {
		case data := <-received:
			if data.ID != "booking-1" {
				t.Errorf("ID = %q, want %q", data.ID, "booking-1")
			}
			if data.Name != "Maria" {
				t.Errorf("Name = %q, want %q", data.Name, "Maria")
			}
		case <-time.After(3 * time.Second):
			t.Fatal("イベントが配信されなかった")
		}
	})

	t.Run("登録していない種別のイベントは無視されること", func(t *testing.T) {
		t.Parallel()

		e, err := event.New("booking-1", event.AggregateTypeBooking, event.TypeBookingRejected,
			event.BookingRejectedData{ID: "booking-1"})
		if err != nil {
			t.Fatal(err)
		}
		ts := newTestFeed(t, sseEvent(t, e), nil)

		var calls atomic.Int64
		l := NewListener(ts.URL, "test-token")
		l.HandleBookingCreated(func(event.BookingCreatedData) {
			calls.Add(1)
		})
		l.Start(context.Background())
		defer l.Stop()

		time.Sleep(500 * time.Millisecond)
		if got := calls.Load(); got != 0 {
			t.Errorf("コールバック呼び出し回数 = %d, want 0", got)
		}
	})

	t.Run("不正なイベントデータで読み取りが継続すること", func(t *testing.T) {
		t.Parallel()

		e, err := event.New("booking-2", event.AggregateTypeBooking, event.TypeBookingCreated,
			event.BookingCreatedData{ID: "booking-2"})
		if err != nil {
			t.Fatal(err)
		}
		body := "event: BookingCreated\ndata: {invalid json\n\n" + sseEvent(t, e)
		ts := newTestFeed(t, body, nil)

		received := make(chan event.BookingCreatedData, 1)
		l := NewListener(ts.URL, "test-token")
		l.HandleBookingCreated(func(data event.BookingCreatedData) {
			received <- data
		})
		l.Start(context.Background())
		defer l.Stop()

		select {
		case data := <-received:
			if data.ID != "booking-2" {
				t.Errorf("ID = %q, want %q", data.ID, "booking-2")
			}
		case <-time.After(3 * time.Second):
			t.Fatal("後続のイベントが配信されなかった")
		}
	})

	t.Run("切断後に再接続されること", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int64
		ts := newTestFeed(t, "", &requests)

		l := NewListener(ts.URL, "test-token")
		l.reconnectWait = 50 * time.Millisecond
		l.Start(context.Background())
		defer l.Stop()

		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			if requests.Load() >= 2 {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
		t.Fatalf("接続回数 = %d, want >= 2", requests.Load())
	})

	t.Run("Stopで購読が停止すること", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int64
		ts := newTestFeed(t, "", &requests)

		l := NewListener(ts.URL, "test-token")
		l.reconnectWait = 50 * time.Millisecond
		l.Start(context.Background())

		deadline := time.Now().Add(3 * time.Second)
		for requests.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		l.Stop()

		time.Sleep(200 * time.Millisecond)
		before := requests.Load()
		time.Sleep(300 * time.Millisecond)
		if after := requests.Load(); after != before {
			t.Errorf("停止後も接続が続いている: before=%d after=%d", before, after)
		}
	})
}
