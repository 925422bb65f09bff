package caseparties

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/negotiation"
)

func TestListParties(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/case_42/parties" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"parties": []negotiation.Party{
				{UserID: "usr_a", Role: "plaintiff", Name: "Ada"},
				{UserID: "usr_b", Role: "defendant", Name: "Ben"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	parties, err := c.ListParties(context.Background(), "case_42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parties) != 2 || parties[0].UserID != "usr_a" {
		t.Fatalf("unexpected parties: %+v", parties)
	}

	ids, err := c.ListCaseMembers(context.Background(), "case_42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[1] != "usr_b" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestListPartiesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.ListParties(context.Background(), "case_nope"); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestStatic(t *testing.T) {
	s := &Static{Cases: map[string][]negotiation.Party{
		"case_1": {{UserID: "usr_a"}, {UserID: "usr_b"}},
	}}
	ids, err := s.ListCaseMembers(context.Background(), "case_1")
	if err != nil || len(ids) != 2 {
		t.Fatalf("ids=%v err=%v", ids, err)
	}
	parties, err := s.ListParties(context.Background(), "case_missing")
	if err != nil || len(parties) != 0 {
		t.Fatalf("parties=%v err=%v", parties, err)
	}
}
