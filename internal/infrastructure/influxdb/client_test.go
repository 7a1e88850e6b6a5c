package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/lumi-core/internal/device"
	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/infrastructure/config"
	"github.com/nerrad567/lumi-core/internal/ledger"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	w.points = append(w.points, p)
	w.mu.Unlock()
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

type fakePinger struct {
	healthy bool
	err     error
	closed  bool
}

func (p *fakePinger) Ping(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.healthy, p.err
}

func (p *fakePinger) Close() { p.closed = true }

func newTestClient() (*Client, *fakeWriter, *fakePinger) {
	w := &fakeWriter{}
	p := &fakePinger{healthy: true}
	return newClient(p, w, config.InfluxDBConfig{Enabled: true, Bucket: "lumi"}), w, p
}

// pointMap flattens a point into comparable tag and field maps.
func pointMap(p *write.Point) (tags map[string]string, fields map[string]any) {
	tags = make(map[string]string)
	fields = make(map[string]any)
	for _, t := range p.TagList() {
		tags[t.Key] = t.Value
	}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return tags, fields
}

func TestConnect_Disabled(t *testing.T) {
	if _, err := Connect(config.InfluxDBConfig{Enabled: false}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Org:     "lumi",
		Bucket:  "lumi",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestOnReceipt(t *testing.T) {
	c, w, _ := newTestClient()
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	c.OnReceipt(context.Background(), dispatcher.Receipt{
		Entry: dispatcher.Entry{
			Seq:       7,
			Height:    500,
			Caller:    "ST1ADMIN",
			Operation: dispatcher.ExecuteSchedule(3),
			Code:      ledger.CodeOK,
			CreatedAt: at,
		},
		Devices: []device.Device{
			{ID: 1, Owner: "ST1ADMIN", IsOn: true, Brightness: 20},
			{ID: 2, Owner: "ST1ADMIN", IsOn: false, Brightness: 20},
		},
	})

	if len(w.points) != 3 {
		t.Fatalf("wrote %d points, want 3", len(w.points))
	}

	op := w.points[0]
	if op.Name() != MeasurementOperation || !op.Time().Equal(at) {
		t.Errorf("operation point = %s at %v", op.Name(), op.Time())
	}
	tags, fields := pointMap(op)
	wantTags := map[string]string{"op": ledger.OpExecuteSchedule, "code": "OK", "result": "accepted"}
	if diff := cmp.Diff(wantTags, tags); diff != "" {
		t.Errorf("operation tags (-want +got):\n%s", diff)
	}
	wantFields := map[string]any{"caller": "ST1ADMIN", "height": uint64(500), "seq": int64(7)}
	if diff := cmp.Diff(wantFields, fields); diff != "" {
		t.Errorf("operation fields (-want +got):\n%s", diff)
	}

	tags, fields = pointMap(w.points[2])
	if w.points[2].Name() != MeasurementDeviceState || tags["device_id"] != "2" {
		t.Errorf("second device point = %s %v", w.points[2].Name(), tags)
	}
	wantState := map[string]any{"owner": "ST1ADMIN", "is_on": false, "brightness": int64(20), "height": uint64(500)}
	if diff := cmp.Diff(wantState, fields); diff != "" {
		t.Errorf("device fields (-want +got):\n%s", diff)
	}
}

func TestOnReceipt_Rejection(t *testing.T) {
	c, w, _ := newTestClient()

	c.OnReceipt(context.Background(), dispatcher.Receipt{Entry: dispatcher.Entry{
		Height:    3,
		Caller:    "ST1OTHER",
		Operation: dispatcher.RegisterDevice(9),
		Code:      ledger.CodeNotAuthorized,
	}})

	if len(w.points) != 1 {
		t.Fatalf("wrote %d points, want 1", len(w.points))
	}
	tags, _ := pointMap(w.points[0])
	if tags["code"] != "NOT_AUTHORIZED" || tags["result"] != "rejected" {
		t.Errorf("tags = %v", tags)
	}
	if w.points[0].Time().IsZero() {
		t.Error("zero CreatedAt should fall back to now")
	}
}

func TestOnReceipt_UnknownOperationTag(t *testing.T) {
	c, w, _ := newTestClient()

	for _, name := range []string{"factory-reset", "drop-table-42"} {
		c.OnReceipt(context.Background(), dispatcher.Receipt{Entry: dispatcher.Entry{
			Height:    4,
			Caller:    "ST1ADMIN",
			Operation: dispatcher.Operation{Op: name},
			Code:      ledger.CodeUnknownOperation,
		}})
	}

	if len(w.points) != 2 {
		t.Fatalf("wrote %d points, want 2", len(w.points))
	}
	for _, p := range w.points {
		tags, _ := pointMap(p)
		if tags["op"] != "unknown" || tags["code"] != "UNKNOWN_OPERATION" {
			t.Errorf("tags = %v, want op=unknown", tags)
		}
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	c, w, p := newTestClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !p.closed || w.flushes != 1 {
		t.Errorf("Close() closed=%v flushes=%d", p.closed, w.flushes)
	}

	c.WriteDeviceState(device.Device{ID: 1}, 1, time.Now())
	c.WriteOperation(dispatcher.Entry{})
	c.Flush()
	if len(w.points) != 0 || w.flushes != 1 {
		t.Errorf("writes after Close: points=%d flushes=%d", len(w.points), w.flushes)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		pinger  *fakePinger
		cancel  bool
		wantErr bool
	}{
		{"healthy", &fakePinger{healthy: true}, false, false},
		{"unhealthy", &fakePinger{healthy: false}, false, true},
		{"ping error", &fakePinger{err: errors.New("refused")}, false, true},
		{"cancelled", &fakePinger{healthy: true}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(tt.pinger, &fakeWriter{}, config.InfluxDBConfig{})
			ctx, cancel := context.WithCancel(context.Background())
			if tt.cancel {
				cancel()
			}
			defer cancel()

			err := c.HealthCheck(ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c, _, _ := newTestClient()

	var got []error
	c.SetOnError(func(err error) { got = append(got, err) })

	ch := make(chan error, 2)
	ch <- errors.New("bucket not found")
	ch <- errors.New("unauthorized")
	close(ch)
	c.handleWriteErrors(ch)

	if len(got) != 2 {
		t.Fatalf("callback got %d errors, want 2", len(got))
	}
	for _, err := range got {
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("error %v does not wrap ErrWriteFailed", err)
		}
	}
}

func TestClose_Nil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
