package observability

import (
	"testing"
	"time"

	"github.com/danmuck/arqlink/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("arq-recv", "GET", "/health", 200, 12*time.Millisecond)
	RecordFrameSent(false)
	RecordFrameSent(true)
	RecordAck("match")
	RecordReceived("delivered", 5)
	RecordReceived("corrupt", 0)
	RecordTransfer("sender", "ok", 30*time.Millisecond)
}

func TestRecordFrameSentCountsByKind(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(senderFrames.WithLabelValues("retransmit"))
	RecordFrameSent(true)
	RecordFrameSent(true)
	after := testutil.ToFloat64(senderFrames.WithLabelValues("retransmit"))
	if after-before != 2 {
		t.Fatalf("retransmit delta=%v want 2", after-before)
	}
}

func TestRecordReceivedBytes(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(receiverBytes)
	RecordReceived("delivered", 11)
	RecordReceived("duplicate", 0)
	if got := testutil.ToFloat64(receiverBytes) - before; got != 11 {
		t.Fatalf("bytes delta=%v want 11", got)
	}
}
