package tuniface

import "testing"

func TestMemDeviceSendBuffers(t *testing.T) {
	dev := NewMemDevice(1)

	if err := dev.Send([]byte("packet")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-dev.Sent():
		if string(got) != "packet" {
			t.Errorf("expected %q, got %q", "packet", got)
		}
	default:
		t.Fatal("expected buffered packet on Sent channel")
	}
}

func TestMemDeviceInjectCallsReceiveFunc(t *testing.T) {
	dev := NewMemDevice(1)

	var received []byte
	dev.SetReceiveFunc(func(pkt []byte) error {
		received = pkt
		return nil
	})

	if err := dev.Inject([]byte("hello")); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if string(received) != "hello" {
		t.Errorf("expected receive func to see %q, got %q", "hello", received)
	}
}

func TestMemDeviceInjectWithoutReceiveFuncErrors(t *testing.T) {
	dev := NewMemDevice(1)
	if err := dev.Inject([]byte("x")); err == nil {
		t.Fatal("expected error when no receive func registered")
	}
}

func TestMemDeviceSendAfterCloseErrors(t *testing.T) {
	dev := NewMemDevice(1)
	dev.Close()

	if err := dev.Send([]byte("x")); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
