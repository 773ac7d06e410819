package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/workboard/internal/apperr"
	"github.com/starford/workboard/internal/model"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Token: "secret"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRecords_MapsIssuesAndMergeRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/proj/issues", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("PRIVATE-TOKEN") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"iid":1,"title":"Add widget","state":"opened","labels":["ext"],"author":{"username":"dev"},"created_at":"2024-01-01T00:00:00Z","updated_at":"2024-02-01T00:00:00Z"}]`))
	})
	mux.HandleFunc("/api/v4/projects/proj/merge_requests", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"iid":2,"title":"Implement widget","state":"merged","author":{"username":"dev"}}]`))
	})
	c := testClient(t, mux)

	records, err := c.Records(context.Background(), "proj")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	issue, mr := records[0], records[1]
	if issue.Ref.String() != "proj#1" || issue.State != model.StateOpen {
		t.Errorf("issue = %+v", issue)
	}
	if mr.Ref.String() != "proj!2" || mr.State != model.StateMerged {
		t.Errorf("mr = %+v", mr)
	}
}

func TestLinks_RelatedMergeRequestsBecomePartOf(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/proj/issues/1/links", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"iid":4,"link_type":"blocks","references":{"full":"proj#4"}},
			{"iid":5,"link_type":"brand_new_kind","references":{"full":"proj#5"}}]`))
	})
	mux.HandleFunc("/api/v4/projects/proj/issues/1/related_merge_requests", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"iid":9,"title":"MR","state":"opened"}]`))
	})
	c := testClient(t, mux)

	issue := &model.Record{Ref: model.RecordRef{Project: "proj", Kind: model.KindIssue, Number: 1}, Title: "x"}
	links, err := c.Links(context.Background(), "proj", []*model.Record{issue})
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 3 {
		t.Fatalf("links = %+v, want 3", links)
	}
	if links[0].Kind != model.LinkBlocks {
		t.Errorf("link[0] = %+v", links[0])
	}
	if links[1].Kind != model.LinkUnknown {
		t.Errorf("unknown link type must fail closed, got %v", links[1].Kind)
	}
	mrLink := links[2]
	if mrLink.Kind != model.LinkPartOf || mrLink.From.String() != "proj!9" || mrLink.To != issue.Ref {
		t.Errorf("related MR link = %+v", mrLink)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
		permanent bool
	}{
		{http.StatusTooManyRequests, true, false},
		{http.StatusBadGateway, true, false},
		{http.StatusUnauthorized, false, true},
		{http.StatusNotFound, false, true},
	}
	for _, tc := range cases {
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := c.Records(context.Background(), "proj")
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if got := apperr.IsTransient(err); got != tc.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", tc.status, got, tc.transient)
		}
		if got := apperr.IsPermanent(err); got != tc.permanent {
			t.Errorf("status %d: IsPermanent = %v, want %v", tc.status, got, tc.permanent)
		}
	}
}

func TestRecords_Pagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/proj/issues", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			w.Header().Set("X-Next-Page", "2")
			w.Write([]byte(`[{"iid":1,"title":"a","state":"opened"}]`))
		case "2":
			w.Write([]byte(`[{"iid":2,"title":"b","state":"opened"}]`))
		}
	})
	mux.HandleFunc("/api/v4/projects/proj/merge_requests", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	c := testClient(t, mux)

	records, err := c.Records(context.Background(), "proj")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want both pages", len(records))
	}
}

func TestOldestUnresolvedThread_UsesThreadStart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/proj/merge_requests/3/discussions", func(w http.ResponseWriter, r *http.Request) {
		// Thread A: resolved opener, unresolved follow-up. Its age is the
		// opener's timestamp, not the follow-up's.
		// Thread B: fully resolved, must not count.
		w.Write([]byte(`[
			{"notes":[
				{"created_at":"2024-01-05T00:00:00Z","resolvable":true,"resolved":true},
				{"created_at":"2024-02-20T00:00:00Z","resolvable":true,"resolved":false}]},
			{"notes":[
				{"created_at":"2024-01-01T00:00:00Z","resolvable":true,"resolved":true}]}
		]`))
	})
	c := testClient(t, mux)

	ref := model.RecordRef{Project: "proj", Kind: model.KindMergeRequest, Number: 3}
	oldest, err := c.OldestUnresolvedThread(context.Background(), ref)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	if !oldest.Equal(want) {
		t.Errorf("oldest = %v, want thread start %v", oldest, want)
	}
}

func TestOldestUnresolvedThread_NoneReturnsZero(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/projects/proj/issues/1/discussions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"notes":[{"created_at":"2024-01-01T00:00:00Z","resolvable":false,"resolved":false}]}]`))
	})
	c := testClient(t, mux)

	ref := model.RecordRef{Project: "proj", Kind: model.KindIssue, Number: 1}
	oldest, err := c.OldestUnresolvedThread(context.Background(), ref)
	if err != nil {
		t.Fatal(err)
	}
	if !oldest.IsZero() {
		t.Errorf("non-resolvable notes must not count, got %v", oldest)
	}
}

func TestFetchAll_JoinsProjects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/v4/projects/p1/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"iid":1,"title":"a","state":"opened"}]`))
	})
	mux.HandleFunc("/api/v4/projects/p2/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"iid":7,"title":"b","state":"opened"}]`))
	})
	c := testClient(t, mux)

	records, _, err := c.FetchAll(context.Background(), []string{"p1", "p2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want one per project", len(records))
	}
}
