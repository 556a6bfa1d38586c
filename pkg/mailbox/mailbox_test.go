package mailbox_test

import (
	"sync"
	"testing"
	"time"

	"github.com/AmeliaMatheson/452-USLOSS-OS/pkg/mailbox"
)

func TestSendRecvFIFO(t *testing.T) {
	mb := mailbox.New(4, 1)
	for _, b := range []byte{1, 2, 3} {
		if err := mb.Send([]byte{b}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	for _, want := range []byte{1, 2, 3} {
		got := mb.Recv()
		if got[0] != want {
			t.Fatalf("Recv = %v, want %d", got, want)
		}
	}
}

func TestCondSendRecvWouldBlock(t *testing.T) {
	mb := mailbox.New(1, 1)
	if err := mb.CondSend([]byte{9}); err != nil {
		t.Fatalf("CondSend: %v", err)
	}
	if err := mb.CondSend([]byte{10}); err != mailbox.ErrWouldBlock {
		t.Fatalf("CondSend on full mailbox = %v, want ErrWouldBlock", err)
	}
	if _, err := mb.CondRecv(); err != nil {
		t.Fatalf("CondRecv: %v", err)
	}
	if _, err := mb.CondRecv(); err != mailbox.ErrWouldBlock {
		t.Fatalf("CondRecv on empty mailbox = %v, want ErrWouldBlock", err)
	}
}

func TestRendezvousBlocksUntilReceived(t *testing.T) {
	mb := mailbox.New(0, 0)
	sent := make(chan struct{})
	go func() {
		mb.Send(nil)
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("Send on empty rendezvous mailbox returned before Recv")
	case <-time.After(20 * time.Millisecond):
	}

	mb.Recv()
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock after Recv")
	}
}

func TestFIFOAcrossManyWaiters(t *testing.T) {
	mb := mailbox.New(0, 1)
	const n = 20
	var wg sync.WaitGroup
	order := make(chan byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i byte) {
			defer wg.Done()
			mb.Send([]byte{i})
		}(byte(i))
		// Ensure sends are issued in order before any receiver races ahead.
		time.Sleep(time.Millisecond)
	}
	go func() {
		wg.Wait()
	}()
	for i := 0; i < n; i++ {
		order <- mb.Recv()[0]
	}
	close(order)
	i := byte(0)
	for v := range order {
		if v != i {
			t.Fatalf("out of order: got %d at position %d", v, i)
		}
		i++
	}
}
