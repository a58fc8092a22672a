package wb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linnemanlabs/wbtrack/internal/tracking"
)

func TestFetch_RequestShape(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL+"/").Fetch(context.Background(), "secret-key"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotPath != "/adv/v1/promotion/adverts" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "type=8,9&status=9,11&order=change&direction=asc" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAuth != "secret-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "secret-key")
	}
}

func TestFetch_ResponseShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []tracking.Campaign
	}{
		{
			"array",
			`[{"advertId":1,"name":"Shoes","status":9},{"advertId":2,"name":"Hats","status":11}]`,
			[]tracking.Campaign{{AdvertID: 1, Name: "Shoes", Status: 9}, {AdvertID: 2, Name: "Hats", Status: 11}},
		},
		{
			"adverts object",
			`{"adverts":[{"advertId":3,"name":"Bags","status":11,"type":8}]}`,
			[]tracking.Campaign{{AdvertID: 3, Name: "Bags", Status: 11}},
		},
		{"object without adverts", `{"total":0}`, nil},
		{"null adverts", `{"adverts":null}`, nil},
		{
			"entry without id skipped",
			`[{"name":"NoID","status":9},{"advertId":4,"status":9}]`,
			[]tracking.Campaign{{AdvertID: 4, Status: 9}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := New(srv.URL).Fetch(context.Background(), "k")
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d campaigns, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("campaign[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFetch_NonOKReturnsFetchError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		code     int
		rejected bool
	}{
		{"server error", http.StatusInternalServerError, false},
		{"rate limited", http.StatusTooManyRequests, false},
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte("upstream says no"))
			}))
			defer srv.Close()

			_, err := New(srv.URL).Fetch(context.Background(), "k")
			var fe *tracking.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *tracking.FetchError", err)
			}
			if fe.StatusCode != tt.code {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.code)
			}
			if fe.Body != "upstream says no" {
				t.Errorf("Body = %q", fe.Body)
			}
			if got := errors.Is(err, tracking.ErrCredentialRejected); got != tt.rejected {
				t.Errorf("errors.Is(ErrCredentialRejected) = %v, want %v", got, tt.rejected)
			}
		})
	}
}

func TestFetch_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"adverts":[`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Fetch(context.Background(), "k")
	if err == nil {
		t.Fatal("expected error for truncated JSON")
	}
	var fe *tracking.FetchError
	if errors.As(err, &fe) {
		t.Error("decode failure should not be a FetchError")
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(srv.URL).Fetch(ctx, "k"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNew_DefaultURL(t *testing.T) {
	t.Parallel()

	c := New("")
	want := DefaultBaseURL + "/adv/v1/promotion/adverts?type=8,9&status=9,11&order=change&direction=asc"
	if c.url != want {
		t.Errorf("url = %q, want %q", c.url, want)
	}
}
