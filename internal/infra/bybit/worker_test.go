package bybit

import (
	"testing"
	"time"

	"maker_go/internal/domain"
	"maker_go/internal/event"
	"maker_go/internal/infra"
)

func TestStreamReadTimeoutTracksHeartbeat(t *testing.T) {
	cfg := &infra.Config{}
	cfg.System.WSHeartbeatTimeoutSec = 15

	if got := streamReadTimeout(cfg); got != 15*time.Second {
		t.Errorf("read timeout = %v, want the configured 15s heartbeat", got)
	}
	if pub := NewPublicWorker(cfg, make(chan event.Event, 1), nil); pub.readTimeout != 15*time.Second {
		t.Errorf("public worker read timeout = %v, want 15s", pub.readTimeout)
	}
	if priv := NewPrivateWorker(cfg, make(chan event.Event, 1), nil); priv.readTimeout != 15*time.Second {
		t.Errorf("private worker read timeout = %v, want 15s", priv.readTimeout)
	}

	if got := streamReadTimeout(&infra.Config{}); got != defaultReadTimeout {
		t.Errorf("unset heartbeat must fall back to %v, got %v", defaultReadTimeout, got)
	}
}

func TestPrivateAuthRejectionIsFatal(t *testing.T) {
	cfg := &infra.Config{}
	cfg.Exchange.Symbol = "BTCUSDT"
	inbox := make(chan event.Event, 1)
	w := NewPrivateWorker(cfg, inbox, nil)

	w.handleMessage([]byte(`{"op":"auth","success":false,"ret_msg":"invalid api key"}`))

	select {
	case ev := <-inbox:
		fatal, ok := ev.(*event.StreamFatalEvent)
		if !ok {
			t.Fatalf("got %T, want a stream fatal event", ev)
		}
		if domain.IsRetriable(fatal.Err) {
			t.Error("a rejected auth must not be retried")
		}
	default:
		t.Fatal("rejected auth produced no fatal event")
	}
}
