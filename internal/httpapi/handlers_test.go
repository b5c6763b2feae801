package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailcrab/mailcrab/internal/mail"
	"github.com/mailcrab/mailcrab/internal/store"
	"github.com/mailcrab/mailcrab/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandlers_ListMessages(t *testing.T) {
	st := store.New(0, discardLogger(), nil)
	st.Insert(mail.Message{ID: mail.NewID(), Subject: "one", Time: 1})
	st.Insert(mail.Message{ID: mail.NewID(), Subject: "two", Time: 2})

	h := NewHandlers(st)
	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()

	h.ListMessages(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []mail.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Subject)
}

func TestHandlers_GetMessage_NotFound(t *testing.T) {
	st := store.New(0, discardLogger(), nil)
	h := NewHandlers(st)

	req := httptest.NewRequest(http.MethodGet, "/api/message/"+mail.NewID().String(), nil)
	req = testutil.WithURLParam(req, "id", mail.NewID().String())
	rec := httptest.NewRecorder()

	h.GetMessage(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_GetMessage_InvalidID(t *testing.T) {
	st := store.New(0, discardLogger(), nil)
	h := NewHandlers(st)

	req := httptest.NewRequest(http.MethodGet, "/api/message/not-a-uuid", nil)
	req = testutil.WithURLParam(req, "id", "not-a-uuid")
	rec := httptest.NewRecorder()

	h.GetMessage(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_GetMessage_Found(t *testing.T) {
	st := store.New(0, discardLogger(), nil)
	msg := mail.Message{ID: mail.NewID(), Subject: "hello"}
	st.Insert(msg)
	h := NewHandlers(st)

	req := httptest.NewRequest(http.MethodGet, "/api/message/"+msg.ID.String(), nil)
	req = testutil.WithURLParam(req, "id", msg.ID.String())
	rec := httptest.NewRecorder()

	h.GetMessage(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got mail.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "hello", got.Subject)
}

func TestHandlers_GetMessageBody_PlainText(t *testing.T) {
	st := store.New(0, discardLogger(), nil)
	msg := mail.Message{ID: mail.NewID(), Text: "plain body"}
	st.Insert(msg)
	h := NewHandlers(st)

	req := httptest.NewRequest(http.MethodGet, "/api/message/"+msg.ID.String()+"/body", nil)
	req = testutil.WithURLParam(req, "id", msg.ID.String())
	rec := httptest.NewRecorder()

	h.GetMessageBody(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "plain body", rec.Body.String())
}

func TestHandlers_GetMessageBody_InlinesContentID(t *testing.T) {
	st := store.New(0, discardLogger(), nil)

	imgData := base64.StdEncoding.EncodeToString([]byte("fake-image-bytes"))
	msg := mail.Message{
		ID:   mail.NewID(),
		HTML: `<img src="cid:logo123">`,
		Attachments: []mail.Attachment{
			{ContentID: "logo123", Mime: "image/png", Content: imgData},
		},
	}
	st.Insert(msg)
	h := NewHandlers(st)

	req := httptest.NewRequest(http.MethodGet, "/api/message/"+msg.ID.String()+"/body", nil)
	req = testutil.WithURLParam(req, "id", msg.ID.String())
	rec := httptest.NewRecorder()

	h.GetMessageBody(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "data:image/png;base64,"+imgData)
}

func TestHandlers_GetMessageBody_LeavesUnmatchedCidAlone(t *testing.T) {
	st := store.New(0, discardLogger(), nil)
	msg := mail.Message{ID: mail.NewID(), HTML: `<img src="cid:missing">`}
	st.Insert(msg)
	h := NewHandlers(st)

	req := httptest.NewRequest(http.MethodGet, "/api/message/"+msg.ID.String()+"/body", nil)
	req = testutil.WithURLParam(req, "id", msg.ID.String())
	rec := httptest.NewRecorder()

	h.GetMessageBody(rec, req)
	assert.Contains(t, rec.Body.String(), "cid:missing")
}

func TestHandlers_DeleteMessage(t *testing.T) {
	st := store.New(0, discardLogger(), nil)
	msg := mail.Message{ID: mail.NewID()}
	st.Insert(msg)
	h := NewHandlers(st)

	req := httptest.NewRequest(http.MethodPost, "/api/delete/"+msg.ID.String(), nil)
	req = testutil.WithURLParam(req, "id", msg.ID.String())
	rec := httptest.NewRecorder()

	h.DeleteMessage(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := st.Get(msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandlers_DeleteMessage_NotFound(t *testing.T) {
	st := store.New(0, discardLogger(), nil)
	h := NewHandlers(st)

	id := mail.NewID()
	req := httptest.NewRequest(http.MethodPost, "/api/delete/"+id.String(), nil)
	req = testutil.WithURLParam(req, "id", id.String())
	rec := httptest.NewRecorder()

	h.DeleteMessage(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_DeleteAll(t *testing.T) {
	st := store.New(0, discardLogger(), nil)
	st.Insert(mail.Message{ID: mail.NewID()})
	st.Insert(mail.Message{ID: mail.NewID()})
	h := NewHandlers(st)

	req := httptest.NewRequest(http.MethodPost, "/api/delete-all", nil)
	rec := httptest.NewRecorder()

	h.DeleteAll(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, st.ListMetadata())
}

func TestHandlers_Version(t *testing.T) {
	st := store.New(0, discardLogger(), nil)
	h := NewHandlers(st)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()

	h.Version(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "version_be")
}
