package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// fakeGmail is an in-memory stand-in for the subset of the Gmail REST API
// used by Client.
type fakeGmail struct {
	mu sync.Mutex

	order    []string
	messages map[string]*gmail.Message
	labels   []*gmail.Label
	failGet  map[string]bool
	failMod  bool
	modified map[string]*gmail.ModifyMessageRequest
	created  []string
	lists    int
	queries  []string
}

func newFakeGmail() *fakeGmail {
	return &fakeGmail{
		messages: make(map[string]*gmail.Message),
		failGet:  make(map[string]bool),
		modified: make(map[string]*gmail.ModifyMessageRequest),
		labels: []*gmail.Label{
			{Id: LabelInbox, Name: LabelInbox, Type: "system"},
			{Id: LabelUnread, Name: LabelUnread, Type: "system"},
		},
	}
}

func (f *fakeGmail) addMessage(m *gmail.Message) {
	f.order = append(f.order, m.Id)
	f.messages[m.Id] = m
}

func (f *fakeGmail) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", f.listMessages)
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", f.getMessage)
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/modify", f.modifyMessage)
	mux.HandleFunc("GET /gmail/v1/users/me/labels", f.listLabels)
	mux.HandleFunc("POST /gmail/v1/users/me/labels", f.createLabel)
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":{"code":` + strconv.Itoa(code) + `,"message":"fake failure"}}`))
}

func (f *fakeGmail) listMessages(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	f.queries = append(f.queries, q.Get("q")+"|"+q.Get("labelIds"))

	size, _ := strconv.Atoi(q.Get("maxResults"))
	if size <= 0 {
		size = maxPageSize
	}
	start, _ := strconv.Atoi(q.Get("pageToken"))

	end := start + size
	if end > len(f.order) {
		end = len(f.order)
	}

	resp := &gmail.ListMessagesResponse{}
	for _, id := range f.order[start:end] {
		resp.Messages = append(resp.Messages, &gmail.Message{Id: id, ThreadId: f.messages[id].ThreadId})
	}
	if end < len(f.order) {
		resp.NextPageToken = strconv.Itoa(end)
	}
	writeJSON(w, resp)
}

func (f *fakeGmail) getMessage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := r.PathValue("id")
	m, ok := f.messages[id]
	if !ok || f.failGet[id] {
		writeError(w, http.StatusNotFound)
		return
	}
	writeJSON(w, m)
}

func (f *fakeGmail) modifyMessage(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failMod {
		writeError(w, http.StatusInternalServerError)
		return
	}
	var req gmail.ModifyMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	f.modified[id] = &req
	writeJSON(w, &gmail.Message{Id: id})
}

func (f *fakeGmail) listLabels(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lists++
	writeJSON(w, &gmail.ListLabelsResponse{Labels: f.labels})
}

func (f *fakeGmail) createLabel(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var l gmail.Label
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}
	l.Id = "Label_" + strconv.Itoa(len(f.labels)+1)
	f.labels = append(f.labels, &l)
	f.created = append(f.created, l.Name+"|"+l.LabelListVisibility+"|"+l.MessageListVisibility)
	writeJSON(w, &l)
}

// newTestClient starts fake behind an httptest server and returns a client
// pointed at it.
func newTestClient(t *testing.T, fake *fakeGmail) *Client {
	t.Helper()

	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), "default",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

// plainMessage builds a full-format message with a single text/plain body.
func plainMessage(id, from, subject, body string) *gmail.Message {
	return &gmail.Message{
		Id:       id,
		ThreadId: "t-" + id,
		LabelIds: []string{LabelInbox, LabelUnread},
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "To", Value: "me@example.com"},
				{Name: "Subject", Value: subject},
				{Name: "Date", Value: "Fri, 01 Mar 2024 10:00:00 +0000"},
			},
			Body: &gmail.MessagePartBody{Data: encode(body)},
		},
	}
}
