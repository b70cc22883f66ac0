package observability

import (
	"testing"
	"time"

	"github.com/danmuck/cardtable/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("cardserver", "GET", "/health", 200, 12*time.Millisecond)
	RecordPacket("in", "action_update")
	RecordJoin("new", "accepted")
	RecordMatchStarted()
	RecordMatchEnded(90 * time.Second)
	RecordDroppedPeer()

	before := testutil.ToFloat64(rejections.WithLabelValues("not_your_turn"))
	RecordRejection("not_your_turn")
	if got := testutil.ToFloat64(rejections.WithLabelValues("not_your_turn")); got != before+1 {
		t.Fatalf("expected rejection counter %v, got %v", before+1, got)
	}

	base := testutil.ToFloat64(connections)
	ConnectionOpened()
	ConnectionOpened()
	ConnectionClosed()
	if got := testutil.ToFloat64(connections); got != base+1 {
		t.Fatalf("expected connections gauge %v, got %v", base+1, got)
	}
}
