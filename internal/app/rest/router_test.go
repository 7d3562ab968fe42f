package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/christmas-fire/squadup/internal/app/rest"
	"github.com/christmas-fire/squadup/internal/mocks"
	"github.com/christmas-fire/squadup/internal/models"
	filerepo "github.com/christmas-fire/squadup/internal/repository/file"
	grouprepo "github.com/christmas-fire/squadup/internal/repository/group"
	messagerepo "github.com/christmas-fire/squadup/internal/repository/message"
	"github.com/christmas-fire/squadup/internal/repository/user"
	"github.com/christmas-fire/squadup/internal/service/auth"
	"github.com/christmas-fire/squadup/internal/service/file"
	"github.com/christmas-fire/squadup/internal/service/group"
	"github.com/christmas-fire/squadup/internal/service/message"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

var codePattern = regexp.MustCompile(`\d{6}`)

type api struct {
	t      *testing.T
	server *httptest.Server

	mu     sync.Mutex
	mails  map[string]string
	events []models.Event
}

func newAPI(t *testing.T) *api {
	a := &api{t: t, mails: make(map[string]string)}
	ctrl := gomock.NewController(t)
	log := zap.NewNop()

	mail := mocks.NewMockMailer(ctrl)
	mail.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, to, _, body string) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.mails[to] = body
			return nil
		}).AnyTimes()

	publisher := mocks.NewMockEventPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, e models.Event) error {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.events = append(a.events, e)
			return nil
		}).AnyTimes()

	users := user.NewMemoryRepository()
	authService := auth.NewAuthService(users, mail, "secret", time.Hour, log)
	groupService := group.NewGroupService(grouprepo.NewMemoryRepository(), users, mail, authService,
		"secret", time.Hour, "http://client", log)
	messageService := message.NewMessageService(messagerepo.NewMemoryRepository(), publisher, log)
	uploads := t.TempDir()
	fileService := file.NewFileService(filerepo.NewMemoryRepository(), groupService, publisher, uploads, 1<<20, log)

	router := rest.NewRouter(rest.Handlers{
		Auth:     rest.NewAuthHandler(authService, log),
		Messages: rest.NewMessageHandler(messageService, log),
		Groups:   rest.NewGroupHandler(groupService, log),
		Files:    rest.NewFileHandler(fileService, log),
	}, rest.RouterConfig{UploadDir: uploads, ClientURL: "http://client", Log: log})

	a.server = httptest.NewServer(router)
	t.Cleanup(a.server.Close)
	return a
}

func (a *api) do(method, path string, body any) (int, []byte) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.server.URL+path, r)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	return a.send(req)
}

func (a *api) send(req *http.Request) (int, []byte) {
	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp.StatusCode, data
}

func (a *api) message(method, path string, body any, wantStatus int) models.Message {
	status, data := a.do(method, path, body)
	require.Equal(a.t, wantStatus, status, string(data))
	var msg models.Message
	require.NoError(a.t, json.Unmarshal(data, &msg))
	return msg
}

func (a *api) errorMessage(data []byte) string {
	var resp rest.ErrorResponse
	require.NoError(a.t, json.Unmarshal(data, &resp))
	return resp.Message
}

// registerVerified registers email, confirms the mailed code and returns the user.
func (a *api) registerVerified(email string) models.User {
	status, data := a.do(http.MethodPost, "/api/auth/register", rest.RegisterRequest{
		FullName: "User " + email, Email: email, Password: "password1",
	})
	require.Equal(a.t, http.StatusCreated, status, string(data))
	var resp rest.RegisterResponse
	require.NoError(a.t, json.Unmarshal(data, &resp))

	a.mu.Lock()
	code := codePattern.FindString(a.mails[email])
	a.mu.Unlock()

	status, data = a.do(http.MethodPost, "/api/auth/verify-otp", rest.VerifyOTPRequest{Email: email, OTP: code})
	require.Equal(a.t, http.StatusOK, status, string(data))
	return resp.User
}

func TestHealth(t *testing.T) {
	a := newAPI(t)

	status, data := a.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(data), `"success":true`)
}

func TestCORSPreflight(t *testing.T) {
	a := newAPI(t)

	req, err := http.NewRequest(http.MethodOptions, a.server.URL+"/messages/send", nil)
	require.NoError(t, err)
	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "http://client", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMessages_SendAndStatus(t *testing.T) {
	req := require.New(t)
	a := newAPI(t)

	// Given two messages in g1
	first := a.message(http.MethodPost, "/messages/send", rest.SendRequest{
		GroupID: "g1", Sender: "u1", SenderName: "Ann", SenderEmail: "ann@x.io", Content: "hello",
	}, http.StatusCreated)
	second := a.message(http.MethodPost, "/messages/send", rest.SendRequest{
		GroupID: "g1", Sender: "u2", Content: "hi",
	}, http.StatusCreated)
	req.Equal(models.StatusSent, first.Status)
	req.Equal("Ann", first.SenderName)

	// Then history is in send order
	status, data := a.do(http.MethodGet, "/messages/group/g1", nil)
	req.Equal(http.StatusOK, status)
	var history []models.Message
	req.NoError(json.Unmarshal(data, &history))
	req.Len(history, 2)
	req.Equal([]string{first.ID, second.ID}, []string{history[0].ID, history[1].ID})

	// When read arrives before delivered
	read := a.message(http.MethodPut, "/messages/"+first.ID+"/read", nil, http.StatusOK)
	req.Equal(models.StatusRead, read.Status)
	late := a.message(http.MethodPut, "/messages/"+first.ID+"/delivered", nil, http.StatusOK)

	// Then the status never moves backwards
	req.Equal(models.StatusRead, late.Status)
	got := a.message(http.MethodGet, "/messages/"+first.ID, nil, http.StatusOK)
	req.Equal(models.StatusRead, got.Status)

	a.mu.Lock()
	defer a.mu.Unlock()
	req.Len(a.events, 3)
	req.Equal(models.StatusChanged{GroupID: "g1", MessageID: first.ID, Status: models.StatusRead}, a.events[2])
}

func TestMessages_Rejections(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"missing content", http.MethodPost, "/messages/send", rest.SendRequest{GroupID: "g1", Sender: "u1"}, http.StatusBadRequest},
		{"missing sender", http.MethodPost, "/messages/send", rest.SendRequest{GroupID: "g1", Content: "x"}, http.StatusBadRequest},
		{"missing group", http.MethodPost, "/messages/send", rest.SendRequest{Sender: "u1", Content: "x"}, http.StatusBadRequest},
		{"attachment and poll", http.MethodPost, "/messages/send", map[string]any{
			"groupId": "g1", "sender": "u1", "content": "x",
			"attachment": map[string]any{"url": "/uploads/a.pdf", "kind": "document"},
			"poll":       map[string]any{"question": "q", "options": []string{"a", "b"}},
		}, http.StatusBadRequest},
		{"poll with one option", http.MethodPost, "/messages/poll", rest.PollRequest{
			GroupID: "g1", Sender: "u1", Question: "q", Options: []string{"only"},
		}, http.StatusBadRequest},
		{"unknown message delivered", http.MethodPut, "/messages/missing/delivered", nil, http.StatusNotFound},
		{"unknown message read", http.MethodPut, "/messages/missing/read", nil, http.StatusNotFound},
		{"unknown message get", http.MethodGet, "/messages/missing", nil, http.StatusNotFound},
		{"malformed body", http.MethodPost, "/messages/send", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := a.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, status, string(data))
			require.NotEmpty(t, a.errorMessage(data))
		})
	}
}

func TestMessages_AttachmentCaption(t *testing.T) {
	a := newAPI(t)

	msg := a.message(http.MethodPost, "/messages/send", map[string]any{
		"groupId": "g1", "sender": "u1",
		"attachment": map[string]any{"url": "/uploads/notes.pdf", "kind": "document"},
	}, http.StatusCreated)

	require.Equal(t, "📄 notes.pdf", msg.Content)
	require.Equal(t, models.KindAttachment, msg.Kind())
}

func TestMessages_PollVoting(t *testing.T) {
	req := require.New(t)
	a := newAPI(t)

	poll := a.message(http.MethodPost, "/messages/poll", rest.PollRequest{
		GroupID: "g1", Sender: "u1", Question: "Lunch?", Options: []string{" pizza ", "sushi"},
	}, http.StatusCreated)
	req.Equal("📊 Poll: Lunch?", poll.Content)
	req.Equal("pizza", poll.Poll.Options[0].Text)

	one, two := 0, 1
	voted := a.message(http.MethodPut, "/messages/"+poll.ID+"/vote", rest.VoteRequest{OptionIndex: &one, Voter: "u2"}, http.StatusOK)
	req.Equal([]int{1, 0}, voted.Poll.Counts())
	voted = a.message(http.MethodPut, "/messages/"+poll.ID+"/vote", rest.VoteRequest{OptionIndex: &two, Voter: "u2"}, http.StatusOK)
	req.Equal([]int{0, 1}, voted.Poll.Counts())

	out := 5
	status, _ := a.do(http.MethodPut, "/messages/"+poll.ID+"/vote", rest.VoteRequest{OptionIndex: &out, Voter: "u2"})
	req.Equal(http.StatusBadRequest, status)
	status, _ = a.do(http.MethodPut, "/messages/"+poll.ID+"/vote", rest.VoteRequest{Voter: "u2"})
	req.Equal(http.StatusBadRequest, status)
}

func TestAuth_Flow(t *testing.T) {
	req := require.New(t)
	a := newAPI(t)

	status, data := a.do(http.MethodPost, "/api/auth/register", rest.RegisterRequest{
		FullName: "Ann", Email: "ann@x.io", Password: "password1",
	})
	req.Equal(http.StatusCreated, status, string(data))

	status, _ = a.do(http.MethodPost, "/api/auth/register", rest.RegisterRequest{
		FullName: "Ann", Email: "ann@x.io", Password: "password1",
	})
	req.Equal(http.StatusConflict, status)

	// A malformed address is rejected before anything is stored or mailed
	status, data = a.do(http.MethodPost, "/api/auth/register", rest.RegisterRequest{
		FullName: "Bob", Email: "not an email", Password: "password1",
	})
	req.Equal(http.StatusBadRequest, status)
	req.Contains(string(data), "valid address")
	a.mu.Lock()
	req.NotContains(a.mails, "not an email")
	a.mu.Unlock()

	status, _ = a.do(http.MethodPost, "/api/auth/login", rest.LoginRequest{Email: "ann@x.io", Password: "password1"})
	req.Equal(http.StatusForbidden, status)

	status, _ = a.do(http.MethodPost, "/api/auth/verify-otp", rest.VerifyOTPRequest{Email: "ann@x.io", OTP: "000000x"})
	req.Equal(http.StatusBadRequest, status)

	a.mu.Lock()
	code := codePattern.FindString(a.mails["ann@x.io"])
	a.mu.Unlock()
	status, _ = a.do(http.MethodPost, "/api/auth/verify-otp", rest.VerifyOTPRequest{Email: "ann@x.io", OTP: code})
	req.Equal(http.StatusOK, status)

	status, data = a.do(http.MethodPost, "/api/auth/login", rest.LoginRequest{Email: "ann@x.io", Password: "password1"})
	req.Equal(http.StatusOK, status)
	var login rest.LoginResponse
	req.NoError(json.Unmarshal(data, &login))
	req.NotEmpty(login.Token)
	req.Equal("ann@x.io", login.User.Email)

	status, _ = a.do(http.MethodPost, "/api/auth/login", rest.LoginRequest{Email: "ann@x.io", Password: "nope-nope"})
	req.Equal(http.StatusUnauthorized, status)
}

func TestGroups_InviteAndAccept(t *testing.T) {
	req := require.New(t)
	a := newAPI(t)
	admin := a.registerVerified("admin@x.io")
	bob := a.registerVerified("bob@x.io")

	status, data := a.do(http.MethodPost, "/api/group/create", rest.CreateGroupRequest{GroupName: "Compilers", AdminID: admin.ID})
	req.Equal(http.StatusCreated, status, string(data))
	var g models.Group
	req.NoError(json.Unmarshal(data, &g))

	status, _ = a.do(http.MethodPost, "/api/group/create", rest.CreateGroupRequest{GroupName: "Compilers", AdminID: admin.ID})
	req.Equal(http.StatusConflict, status)

	// When bob is invited and follows the link twice
	status, data = a.do(http.MethodPost, "/api/group/invite", rest.InviteRequest{Email: "bob@x.io", GroupID: g.ID})
	req.Equal(http.StatusOK, status, string(data))
	var invite rest.InviteResponse
	req.NoError(json.Unmarshal(data, &invite))
	token := invite.Link[strings.LastIndex(invite.Link, "/")+1:]

	for range 2 {
		status, data = a.do(http.MethodGet, "/api/group/accept/"+token, nil)
		req.Equal(http.StatusOK, status, string(data))
		var res group.AcceptResult
		req.NoError(json.Unmarshal(data, &res))
		req.Equal(group.AcceptAccepted, res.Status)
		req.NotEmpty(res.Token)
	}

	// Then bob is a member exactly once
	status, data = a.do(http.MethodGet, "/api/group/"+g.ID, nil)
	req.Equal(http.StatusOK, status)
	var details group.Details
	req.NoError(json.Unmarshal(data, &details))
	req.Equal("Compilers", details.GroupName)
	req.Equal("admin@x.io", details.AdminEmail)
	req.ElementsMatch([]string{"admin@x.io", "bob@x.io"}, details.MemberEmails)
	req.Equal(2, details.MemberCount)

	status, data = a.do(http.MethodGet, "/api/group/user/"+bob.ID, nil)
	req.Equal(http.StatusOK, status)
	var summaries []group.Summary
	req.NoError(json.Unmarshal(data, &summaries))
	req.Len(summaries, 1)
	req.Equal(g.ID, summaries[0].ID)

	status, data = a.do(http.MethodGet, "/api/group/accept/garbage", nil)
	req.Equal(http.StatusBadRequest, status)
	req.Contains(string(data), string(group.AcceptInvalid))

	status, _ = a.do(http.MethodGet, "/api/group/missing", nil)
	req.Equal(http.StatusNotFound, status)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func (a *api) upload(groupID, email, name string, content []byte) (int, []byte) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(a.t, w.WriteField("groupId", groupID))
	require.NoError(a.t, w.WriteField("userEmail", email))
	require.NoError(a.t, w.WriteField("userName", "Uploader"))
	part, err := w.CreateFormFile("file", name)
	require.NoError(a.t, err)
	_, err = part.Write(content)
	require.NoError(a.t, err)
	require.NoError(a.t, w.Close())

	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/api/files/upload", &body)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return a.send(req)
}

func TestFiles_UploadListDownload(t *testing.T) {
	req := require.New(t)
	a := newAPI(t)
	admin := a.registerVerified("admin@x.io")
	a.registerVerified("eve@x.io")

	status, data := a.do(http.MethodPost, "/api/group/create", rest.CreateGroupRequest{GroupName: "Pics", AdminID: admin.ID})
	req.Equal(http.StatusCreated, status)
	var g models.Group
	req.NoError(json.Unmarshal(data, &g))

	status, data = a.upload(g.ID, "admin@x.io", "cat.png", pngHeader)
	req.Equal(http.StatusOK, status, string(data))
	var uploaded rest.UploadResponse
	req.NoError(json.Unmarshal(data, &uploaded))
	req.True(uploaded.Success)

	status, data = a.do(http.MethodGet, "/api/files/group/"+g.ID, nil)
	req.Equal(http.StatusOK, status)
	var files []models.File
	req.NoError(json.Unmarshal(data, &files))
	req.Len(files, 1)

	status, data = a.do(http.MethodGet, "/api/files/download/"+uploaded.File.ID, nil)
	req.Equal(http.StatusOK, status)
	req.Equal(pngHeader, data)

	status, data = a.do(http.MethodGet, uploaded.File.URL, nil)
	req.Equal(http.StatusOK, status)
	req.Equal(pngHeader, data)

	// Rejections
	status, _ = a.upload(g.ID, "eve@x.io", "cat.png", pngHeader)
	req.Equal(http.StatusForbidden, status)
	status, _ = a.upload("missing", "admin@x.io", "cat.png", pngHeader)
	req.Equal(http.StatusNotFound, status)
	status, _ = a.upload(g.ID, "admin@x.io", "tool.exe", pngHeader)
	req.Equal(http.StatusBadRequest, status)
	status, _ = a.do(http.MethodGet, "/api/files/download/missing", nil)
	req.Equal(http.StatusNotFound, status)
}
