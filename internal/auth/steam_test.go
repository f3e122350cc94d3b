package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestAuthority(t *testing.T, handler http.HandlerFunc) *SteamAuthority {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := NewSteamAuthority("test-key", 480, time.Second)
	a.baseURL = srv.URL
	a.client = srv.Client()
	return a
}

func TestSteamAuthority_CheckTicket_OK(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("appid"); got != "480" {
			t.Errorf("appid = %q, want 480", got)
		}
		if got := r.URL.Query().Get("ticket"); got != "deadbeef" {
			t.Errorf("ticket = %q, want deadbeef", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"params":{"result":"OK","steamid":"76561198012345678","ownersteamid":"76561198012345678","vacbanned":false,"publisherbanned":false}}}`))
	})

	id, err := a.CheckTicket(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("CheckTicket: %v", err)
	}
	if id != 76561198012345678 {
		t.Fatalf("unexpected steam id %d", id)
	}
}

func TestSteamAuthority_CheckTicket_RejectedTicket(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"error":{"errorcode":101,"errordesc":"Invalid ticket"}}}`))
	})

	_, err := a.CheckTicket(context.Background(), "deadbeef")
	if !errors.Is(err, ErrTicketRejected) {
		t.Fatalf("expected ErrTicketRejected, got %v", err)
	}
}

func TestSteamAuthority_CheckTicket_PublisherBanned(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"params":{"result":"OK","steamid":"76561198012345678","publisherbanned":true}}}`))
	})

	_, err := a.CheckTicket(context.Background(), "deadbeef")
	if !errors.Is(err, ErrTicketRejected) {
		t.Fatalf("expected ErrTicketRejected, got %v", err)
	}
}

func TestSteamAuthority_CheckTicket_ServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := a.CheckTicket(context.Background(), "deadbeef")
	if !errors.Is(err, ErrAuthorityUnavailable) {
		t.Fatalf("expected ErrAuthorityUnavailable, got %v", err)
	}
}

func TestSteamAuthority_CheckTicket_GarbageBodyIsUnavailable(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := a.CheckTicket(context.Background(), "deadbeef")
	if !errors.Is(err, ErrAuthorityUnavailable) {
		t.Fatalf("expected ErrAuthorityUnavailable, got %v", err)
	}
}

func TestSteamAuthority_CheckTicket_UnreachableHostIsUnavailable(t *testing.T) {
	t.Parallel()

	a := NewSteamAuthority("test-key", 480, 100*time.Millisecond)
	a.baseURL = "http://127.0.0.1:1" // nothing listens here

	_, err := a.CheckTicket(context.Background(), "deadbeef")
	if !errors.Is(err, ErrAuthorityUnavailable) {
		t.Fatalf("expected ErrAuthorityUnavailable, got %v", err)
	}
}

func TestInsecureAuthority_CheckTicket(t *testing.T) {
	t.Parallel()

	var a InsecureAuthority

	id, err := a.CheckTicket(context.Background(), "76561198000000001")
	if err != nil || id != 76561198000000001 {
		t.Fatalf("CheckTicket: id=%d err=%v", id, err)
	}

	if _, err := a.CheckTicket(context.Background(), "deadbeef"); !errors.Is(err, ErrTicketRejected) {
		t.Fatalf("expected ErrTicketRejected for non-numeric ticket, got %v", err)
	}
	if _, err := a.CheckTicket(context.Background(), "-5"); !errors.Is(err, ErrTicketRejected) {
		t.Fatalf("expected ErrTicketRejected for negative id, got %v", err)
	}
}
