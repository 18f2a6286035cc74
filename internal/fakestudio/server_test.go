package fakestudio

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/studio/internal/agents"
	"github.com/jo-hoe/studio/internal/config"
	"github.com/jo-hoe/studio/internal/jobs"
	"github.com/jo-hoe/studio/internal/storage"
	"github.com/jo-hoe/studio/internal/studio"
)

const (
	adminEmail    = "admin@studio.local"
	adminPassword = "secret"
)

func startFake(t *testing.T, mutate func(*config.FakeConfig)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.FakeConfig{Steps: 3, AdminEmail: adminEmail, AdminPassword: adminPassword}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := New(nil, cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func newClient(t *testing.T, baseURL string) *studio.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c, err := studio.New(baseURL, 5*time.Second, studio.WithCookieJar(jar))
	require.NoError(t, err)
	return c
}

func loggedIn(t *testing.T, baseURL, email, password string) (*studio.Client, studio.User) {
	t.Helper()
	c := newClient(t, baseURL)
	u, err := c.Login(context.Background(), email, password)
	require.NoError(t, err)
	return c, u
}

func fastPolling() config.PollingConfig {
	p := config.PollSettings{Interval: time.Millisecond, MaxAttempts: 20, DiscoveryDelay: time.Millisecond}
	return config.PollingConfig{Content: p, Speech: p, Video: p}
}

func runJob(t *testing.T, c *studio.Client, req jobs.Request) jobs.Job {
	t.Helper()
	set := agents.Set{Client: c, Polling: fastPolling()}
	tr, err := set.NewTracker(req.Kind())
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Start(context.Background(), req)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := tr.Wait(ctx)
	require.NoError(t, err)
	return job
}

func TestSession_RequiresCookie(t *testing.T) {
	_, ts := startFake(t, nil)
	c := newClient(t, ts.URL)

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, studio.ErrUnauthorized)

	_, err = c.Login(context.Background(), adminEmail, "wrong")
	var apiErr *studio.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid email or password", apiErr.Message)

	u, err := c.Login(context.Background(), "  ADMIN@studio.local ", adminPassword)
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", u.Role)

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, u.ID, me.ID)

	require.NoError(t, c.Logout(context.Background()))
	_, err = c.Me(context.Background())
	assert.ErrorIs(t, err, studio.ErrUnauthorized)
}

func TestContentJob_CompletesAfterSteps(t *testing.T) {
	_, ts := startFake(t, nil)
	c, _ := loggedIn(t, ts.URL, adminEmail, adminPassword)

	job := runJob(t, c, agents.ContentRequest{Message: "Budget vote", QuickAction: "SEO Title"})
	require.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, 3, job.Attempts)
	assert.Empty(t, job.ErrorMessage)
	assert.Equal(t, jobs.ContentResult{Text: "SEO Title: Budget vote"}, job.Result)
}

func TestContentJob_FailMarker(t *testing.T) {
	_, ts := startFake(t, nil)
	c, _ := loggedIn(t, ts.URL, adminEmail, adminPassword)

	job := runJob(t, c, agents.ContentRequest{Message: "please [fail]"})
	require.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, "Content generation failed", job.ErrorMessage)
	assert.Nil(t, job.Result)
}

func TestContentResult_UnknownRunIsNotFound(t *testing.T) {
	_, ts := startFake(t, nil)
	c, _ := loggedIn(t, ts.URL, adminEmail, adminPassword)

	_, err := c.ContentResult(context.Background(), "missing")
	assert.True(t, studio.IsNotFound(err), "err = %v", err)
}

func TestSpeechJob_CompletesAndDownloads(t *testing.T) {
	_, ts := startFake(t, nil)
	c, _ := loggedIn(t, ts.URL, adminEmail, adminPassword)

	job := runJob(t, c, agents.SpeechRequest{Text: "Welcome to the show", VoiceID: "voice-rachel"})
	require.Equal(t, jobs.StatusCompleted, job.Status)
	res, ok := job.Result.(jobs.SpeechResult)
	require.True(t, ok)
	assert.Equal(t, "Rachel", res.VoiceName)
	assert.Contains(t, res.AudioURL, ts.URL+"/media/speech/")

	d := storage.NewDownloader(nil, t.TempDir(), c.HTTPClient(), 1<<20)
	dl, err := d.Fetch(context.Background(), res.AudioURL, "welcome")
	require.NoError(t, err)
	assert.Equal(t, ".mp3", filepath.Ext(dl.Path))
	assert.Equal(t, res.SizeBytes, dl.Size)

	history, err := c.SpeechHistory(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NoError(t, c.DeleteSpeech(context.Background(), history[0].ID))
	history, err = c.SpeechHistory(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSpeechJobs_ConcurrentMatchByEventID(t *testing.T) {
	_, ts := startFake(t, nil)
	c, _ := loggedIn(t, ts.URL, adminEmail, adminPassword)
	set := agents.Set{Client: c, Polling: fastPolling()}

	var trackers []*jobs.Tracker
	for _, text := range []string{"first take", "second take [fail]"} {
		tr, err := set.NewTracker(jobs.KindSpeech)
		require.NoError(t, err)
		defer tr.Close()
		_, err = tr.Start(context.Background(), agents.SpeechRequest{Text: text, VoiceID: "voice-daniel"})
		require.NoError(t, err)
		trackers = append(trackers, tr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	first, err := trackers[0].Wait(ctx)
	require.NoError(t, err)
	second, err := trackers[1].Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, first.Status)
	assert.Equal(t, jobs.StatusFailed, second.Status)
	assert.Equal(t, "Voice synthesis failed", second.ErrorMessage)
	assert.NotEqual(t, first.JobID, second.JobID)
}

func TestVideoJob_DiscoversIDWhenOmitted(t *testing.T) {
	_, ts := startFake(t, func(c *config.FakeConfig) { c.OmitVideoID = true })
	c, u := loggedIn(t, ts.URL, adminEmail, adminPassword)

	job := runJob(t, c, agents.VideoRequest{Script: "Hello there", AvatarID: "avatar-lena", VoiceID: "vv-anna", UserID: u.ID})
	require.Equal(t, jobs.StatusCompleted, job.Status)
	res := job.Result.(jobs.VideoResult)
	assert.Equal(t, "Lena", res.AvatarName)

	page, err := c.VideoHistory(context.Background(), u.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Videos, 1)
	assert.Equal(t, job.JobID, page.Videos[0].ID)
	assert.Equal(t, 1, page.Pagination.Total)

	d := storage.NewDownloader(nil, t.TempDir(), c.HTTPClient(), 1<<20)
	dl, err := d.Fetch(context.Background(), res.VideoURL, "hello")
	require.NoError(t, err)
	assert.Equal(t, ".mp4", filepath.Ext(dl.Path))

	deleted, err := c.DeleteVideo(context.Background(), job.JobID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, deleted)
}

func TestVideoHistory_OtherUserForbidden(t *testing.T) {
	srv, ts := startFake(t, nil)
	srv.AddUser("writer@studio.local", "pw", "SCRIPT_WRITER")
	c, _ := loggedIn(t, ts.URL, "writer@studio.local", "pw")

	_, err := c.VideoHistory(context.Background(), "someone-else", 1, 10)
	var apiErr *studio.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestScripts_Lifecycle(t *testing.T) {
	_, ts := startFake(t, nil)
	c, _ := loggedIn(t, ts.URL, adminEmail, adminPassword)
	ctx := context.Background()

	sc, err := c.CreateScript(ctx, studio.ScriptInput{Heading: "Intro", Content: "Hello"})
	require.NoError(t, err)
	require.NotNil(t, sc)

	require.NoError(t, c.UpdateScript(ctx, sc.ID, "Intro v2", "Hello again"))
	mine, err := c.MyScripts(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Intro v2", mine[0].Heading)

	pending, err := c.VoiceOverScripts(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	job := runJob(t, c, agents.SpeechRequest{Text: mine[0].Content, VoiceID: "voice-rachel", ScriptID: sc.ID})
	require.Equal(t, jobs.StatusCompleted, job.Status)
	pending, err = c.VoiceOverScripts(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, c.DeleteScript(ctx, sc.ID))
	err = c.DeleteScript(ctx, sc.ID)
	assert.True(t, studio.IsNotFound(err), "err = %v", err)
}

func TestAdmin_UserManagement(t *testing.T) {
	_, ts := startFake(t, nil)
	c, admin := loggedIn(t, ts.URL, adminEmail, adminPassword)
	ctx := context.Background()

	require.NoError(t, c.RegisterUser(ctx, "voice@studio.local", "pw", "VOICE_GENERATOR"))
	err := c.RegisterUser(ctx, "voice@studio.local", "pw", "VOICE_GENERATOR")
	assert.Error(t, err)

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	var created studio.AdminUser
	for _, u := range users {
		if u.Email == "voice@studio.local" {
			created = u
		}
	}
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "VOICE_GENERATOR", created.Role)

	require.NoError(t, c.UpdateUser(ctx, created, "voice2@studio.local", "", "SCRIPT_WRITER"))
	users, err = c.ListUsers(ctx)
	require.NoError(t, err)
	for _, u := range users {
		if u.ID == created.ID {
			assert.Equal(t, "voice2@studio.local", u.Email)
			assert.Equal(t, "SCRIPT_WRITER", u.CurrentRole())
		}
	}

	other, _ := loggedIn(t, ts.URL, "voice2@studio.local", "pw")
	_, err = other.ListUsers(ctx)
	var apiErr *studio.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	require.NoError(t, c.DeleteUser(ctx, created.ID))
	_, err = other.Me(ctx)
	assert.True(t, errors.Is(err, studio.ErrUnauthorized), "deleted user keeps a session: %v", err)

	err = c.DeleteUser(ctx, admin.ID)
	assert.Error(t, err)
}

func TestCatalog_AvatarsAndVoices(t *testing.T) {
	_, ts := startFake(t, nil)
	c, _ := loggedIn(t, ts.URL, adminEmail, adminPassword)
	ctx := context.Background()

	all, err := c.Avatars(ctx, 0, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page2, err := c.Avatars(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "Kim", page2[0].AvatarName)

	found, err := c.Avatars(ctx, 0, "TOM")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "avatar-tom", found[0].AvatarID)

	voices, err := c.SpeechVoices(ctx)
	require.NoError(t, err)
	assert.Len(t, voices, 2)

	vv, err := c.VideoVoices(ctx)
	require.NoError(t, err)
	assert.Len(t, vv, 2)
}
