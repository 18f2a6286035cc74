package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/jo-hoe/studio/internal/agents"
	"github.com/jo-hoe/studio/internal/common"
	"github.com/jo-hoe/studio/internal/console"
	"github.com/jo-hoe/studio/internal/jobs"
	"github.com/jo-hoe/studio/internal/session"
	"github.com/jo-hoe/studio/internal/studio"
)

// ErrUsage is returned for unknown commands and bad arguments.
var ErrUsage = errors.New("usage error")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *App, args []string) error
}

var commands = []command{
	{"login", "log in and store the session cookie", cmdLogin},
	{"logout", "end the session", cmdLogout},
	{"whoami", "show the current user and roles", cmdWhoami},
	{"news", "generate news content", cmdNews},
	{"speech", "generate a voice-over", cmdSpeech},
	{"video", "generate an avatar video", cmdVideo},
	{"avatars", "list video avatars", cmdAvatars},
	{"voices", "list speech or video voices", cmdVoices},
	{"scripts", "list, create, update or delete scripts", cmdScripts},
	{"speeches", "list or delete generated speeches", cmdSpeeches},
	{"videos", "list or delete generated videos", cmdVideos},
	{"users", "manage users (admin)", cmdUsers},
	{"history", "show locally recorded jobs", cmdHistory},
	{"download", "download the media of a recorded job", cmdDownload},
	{"batch", "run a YAML batch of jobs", cmdBatch},
}

// Usage writes the command overview to w.
func Usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: studio [-config file] <command> [flags]")
	_, _ = fmt.Fprintln(w)
	tw := newTable(w)
	for _, c := range commands {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	_, _ = fmt.Fprintf(tw, "  %s\t%s\n", "fake-server", "serve the in-memory studio backend")
	_ = tw.Flush()
}

// Run dispatches args[0] to its command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		Usage(a.Err)
		return ErrUsage
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, a, args[1:])
		}
	}
	Usage(a.Err)
	return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
}

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.Err)
	return fs
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

func cmdLogin(ctx context.Context, a *App, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password, defaults to $STUDIO_PASSWORD")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("STUDIO_PASSWORD")
	}
	if strings.TrimSpace(*email) == "" || *password == "" {
		return fmt.Errorf("%w: login needs -email and -password", ErrUsage)
	}
	a.Router.Set(session.ViewLogin)
	user, err := a.Store.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.Out, "logged in as %s (%s), home: %s\n", user.Email, strings.Join(roleNames(session.EffectiveRoles(user)), ", "), a.Router.Current())
	return nil
}

func cmdLogout(ctx context.Context, a *App, args []string) error {
	if err := parse(a.flags("logout"), args); err != nil {
		return err
	}
	if err := a.Store.Logout(ctx); err != nil {
		a.Log.Warn("logout request failed, clearing local session anyway", "err", err)
	}
	if err := a.Jar.Clear(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.Out, "logged out")
	return nil
}

func cmdWhoami(ctx context.Context, a *App, args []string) error {
	if err := parse(a.flags("whoami"), args); err != nil {
		return err
	}
	user, err := a.enter(ctx, session.ViewProfile)
	if err != nil {
		return err
	}
	tw := newTable(a.Out)
	_, _ = fmt.Fprintf(tw, "id\t%s\n", user.ID)
	_, _ = fmt.Fprintf(tw, "email\t%s\n", user.Email)
	_, _ = fmt.Fprintf(tw, "role\t%s\n", user.Role)
	if user.AssignedRole != "" {
		_, _ = fmt.Fprintf(tw, "assigned\t%s\n", user.AssignedRole)
	}
	_, _ = fmt.Fprintf(tw, "roles\t%s\n", strings.Join(roleNames(session.EffectiveRoles(*user)), ", "))
	_, _ = fmt.Fprintf(tw, "home\t%s\n", session.HomeView(user.Role))
	return tw.Flush()
}

func roleNames(roles []session.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

func cmdNews(ctx context.Context, a *App, args []string) error {
	fs := a.flags("news")
	message := fs.String("message", "", "topic or article text, or pass it as arguments")
	action := fs.String("action", "", `quick action such as "SEO Title" or "Hashtags"`)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *message == "" {
		*message = strings.Join(fs.Args(), " ")
	}
	if _, err := a.enter(ctx, session.ViewNewsAgent); err != nil {
		return err
	}
	_, err := a.runTracked(ctx, agents.ContentRequest{Message: *message, QuickAction: *action}, "", false)
	return err
}

func cmdSpeech(ctx context.Context, a *App, args []string) error {
	defaults := agents.DefaultVoiceSettings()
	fs := a.flags("speech")
	text := fs.String("text", "", "text to speak, or pass it as arguments")
	voice := fs.String("voice", "", "voice id, see: studio voices")
	lang := fs.String("language", common.LanguageMultilingual, "multilingual or a language tag")
	script := fs.String("script", "", "script id the speech belongs to")
	stability := fs.Float64("stability", defaults.Stability, "voice stability 0..1")
	similarity := fs.Float64("similarity", defaults.SimilarityBoost, "similarity boost 0..1")
	style := fs.Float64("style", defaults.Style, "style exaggeration 0..1")
	boost := fs.Bool("speaker-boost", defaults.UseSpeakerBoost, "use speaker boost")
	name := fs.String("name", "", "name of the downloaded file")
	download := fs.Bool("download", false, "download the audio when done")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *text == "" {
		*text = strings.Join(fs.Args(), " ")
	}
	if _, err := a.enter(ctx, session.ViewVoiceOverAgent); err != nil {
		return err
	}
	req := agents.SpeechRequest{
		Text:     *text,
		VoiceID:  *voice,
		Language: *lang,
		ScriptID: *script,
		Settings: &studio.VoiceSettings{Stability: *stability, SimilarityBoost: *similarity, Style: *style, UseSpeakerBoost: *boost},
	}
	_, err := a.runTracked(ctx, req, *name, *download)
	return err
}

func cmdVideo(ctx context.Context, a *App, args []string) error {
	fs := a.flags("video")
	script := fs.String("script", "", "script the avatar reads, or pass it as arguments")
	avatar := fs.String("avatar", "", "avatar id, see: studio avatars")
	voice := fs.String("voice", "", "voice id, see: studio voices -video")
	duration := fs.String("duration", common.VideoDurationAuto, `"Auto" or seconds such as "30s"`)
	name := fs.String("name", "", "name of the downloaded file")
	download := fs.Bool("download", false, "download the video when done")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *script == "" {
		*script = strings.Join(fs.Args(), " ")
	}
	user, err := a.enter(ctx, session.ViewVideoAgent)
	if err != nil {
		return err
	}
	req := agents.VideoRequest{Script: *script, AvatarID: *avatar, VoiceID: *voice, Duration: *duration, UserID: user.ID}
	_, err = a.runTracked(ctx, req, *name, *download)
	return err
}

// runTracked starts req, shows progress until it settles and prints the result.
func (a *App) runTracked(ctx context.Context, req jobs.Request, name string, download bool) (jobs.Job, error) {
	kind := req.Kind()
	tracker, err := a.agents().NewTracker(kind)
	if err != nil {
		return jobs.Job{}, err
	}
	defer tracker.Close()

	if st, err := a.historyStore(); err != nil {
		a.Log.Warn("local history unavailable", "err", err)
	} else {
		tracker.OnChange(jobs.NewRecorder(a.Log, st).Observe)
	}
	progress := console.NewJobProgress(a.Err, kind, a.pollSettings(kind).MaxAttempts)
	tracker.OnChange(progress.Observe)

	job, err := tracker.Start(ctx, req)
	if err != nil {
		return job, err
	}
	job, err = tracker.Wait(ctx)
	if err != nil {
		return job, err
	}
	if !job.Status.IsTerminal() {
		return job, ctx.Err()
	}
	if job.Status == jobs.StatusFailed {
		return job, fmt.Errorf("%s job failed: %s", kind, job.ErrorMessage)
	}
	a.printResult(job)
	if download {
		if name == "" {
			name = string(kind) + "-" + job.LocalID
		}
		if err := a.fetch(ctx, job, name); err != nil {
			return job, err
		}
	}
	return job, nil
}

func (a *App) printResult(job jobs.Job) {
	switch r := job.Result.(type) {
	case jobs.ContentResult:
		_, _ = fmt.Fprintln(a.Out, r.Text)
	case jobs.SpeechResult:
		_, _ = fmt.Fprintf(a.Out, "audio: %s (%s, %.1fs, voice %s)\n", r.AudioURL, console.Size(r.SizeBytes), r.DurationSeconds, orDash(r.VoiceName))
	case jobs.VideoResult:
		_, _ = fmt.Fprintf(a.Out, "video: %s (avatar %s, voice %s)\n", r.VideoURL, orDash(r.AvatarName), orDash(r.VoiceName))
	}
	_, _ = fmt.Fprintf(a.Out, "local id: %s\n", job.LocalID)
}

func (a *App) fetch(ctx context.Context, job jobs.Job, name string) error {
	media := jobs.MediaURL(job.Result)
	if media == "" {
		return fmt.Errorf("%s job %s has no media to download", job.Kind, job.LocalID)
	}
	d, err := a.downloader().Fetch(ctx, a.Client.ResolveURL(media), name)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	_, _ = fmt.Fprintf(a.Out, "saved %s (%s, %s)\n", d.Path, d.Format, console.Size(d.Size))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func cmdAvatars(ctx context.Context, a *App, args []string) error {
	fs := a.flags("avatars")
	page := fs.Int("page", 0, "page number, 0 lists all")
	search := fs.String("search", "", "filter by name")
	if err := parse(fs, args); err != nil {
		return err
	}
	if _, err := a.enter(ctx, session.ViewSelectAvatar); err != nil {
		return err
	}
	list, err := a.Client.Avatars(ctx, *page, *search)
	if err != nil {
		return err
	}
	tw := newTable(a.Out)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tGENDER\tPREMIUM")
	for _, av := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", av.AvatarID, av.AvatarName, orDash(av.Gender), av.Premium)
	}
	return tw.Flush()
}

func cmdVoices(ctx context.Context, a *App, args []string) error {
	fs := a.flags("voices")
	video := fs.Bool("video", false, "list video voices instead of speech voices")
	if err := parse(fs, args); err != nil {
		return err
	}
	tw := newTable(a.Out)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tDESCRIPTION")
	if *video {
		if _, err := a.enter(ctx, session.ViewVideoAgent); err != nil {
			return err
		}
		list, err := a.Client.VideoVoices(ctx)
		if err != nil {
			return err
		}
		for _, v := range list {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.VoiceID, v.Name, orDash(v.Category), orDash(v.Description))
		}
		return tw.Flush()
	}
	if _, err := a.enter(ctx, session.ViewVoiceOverAgent); err != nil {
		return err
	}
	list, err := a.Client.SpeechVoices(ctx)
	if err != nil {
		return err
	}
	for _, v := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.VoiceID, v.Name, orDash(v.Category), orDash(v.Description))
	}
	return tw.Flush()
}

// subcommand splits "list -flag" style arguments.
func subcommand(args []string, known ...string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: expected one of %s", ErrUsage, strings.Join(known, ", "))
	}
	for _, k := range known {
		if args[0] == k {
			return k, args[1:], nil
		}
	}
	return "", nil, fmt.Errorf("%w: unknown subcommand %q, expected one of %s", ErrUsage, args[0], strings.Join(known, ", "))
}

// positional returns the single id argument of fs.
func positional(fs *flag.FlagSet, what string) (string, error) {
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return "", fmt.Errorf("%w: %s needs exactly one %s", ErrUsage, fs.Name(), what)
	}
	return fs.Arg(0), nil
}

func cmdScripts(ctx context.Context, a *App, args []string) error {
	sub, rest, err := subcommand(args, "list", "pending", "create", "update", "delete")
	if err != nil {
		return err
	}
	fs := a.flags("scripts " + sub)
	heading := fs.String("heading", "", "script heading")
	description := fs.String("description", "", "script description")
	content := fs.String("content", "", "script text")
	if err := parse(fs, rest); err != nil {
		return err
	}

	switch sub {
	case "list", "pending":
		view := session.ViewMyScripts
		load := a.Client.MyScripts
		if sub == "pending" {
			view, load = session.ViewScriptsList, a.Client.VoiceOverScripts
		}
		if _, err := a.enter(ctx, view); err != nil {
			return err
		}
		list, err := load(ctx)
		if err != nil {
			return err
		}
		tw := newTable(a.Out)
		_, _ = fmt.Fprintln(tw, "ID\tHEADING\tVOICED\tCREATED")
		for _, s := range list {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", s.ID, s.Heading, s.IsVoiceGenerated, s.CreatedAt)
		}
		return tw.Flush()
	case "create":
		if _, err := a.enter(ctx, session.ViewScriptWriter); err != nil {
			return err
		}
		s, err := a.Client.CreateScript(ctx, studio.ScriptInput{Heading: *heading, Description: *description, Content: *content})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "created script %s\n", s.ID)
		return nil
	}

	id, err := positional(fs, "script id")
	if err != nil {
		return err
	}
	if _, err := a.enter(ctx, session.ViewMyScripts); err != nil {
		return err
	}
	if sub == "update" {
		if *heading == "" && *content == "" {
			return fmt.Errorf("%w: update needs -heading or -content", ErrUsage)
		}
		if err := a.Client.UpdateScript(ctx, id, *heading, *content); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "updated script %s\n", id)
		return nil
	}
	if err := a.Client.DeleteScript(ctx, id); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.Out, "deleted script %s\n", id)
	return nil
}

func cmdSpeeches(ctx context.Context, a *App, args []string) error {
	sub, rest, err := subcommand(args, "list", "delete")
	if err != nil {
		return err
	}
	fs := a.flags("speeches " + sub)
	limit := fs.Int("limit", 20, "entries to list")
	if err := parse(fs, rest); err != nil {
		return err
	}
	if _, err := a.enter(ctx, session.ViewHistory); err != nil {
		return err
	}
	if sub == "delete" {
		id, err := positional(fs, "speech id")
		if err != nil {
			return err
		}
		if err := a.Client.DeleteSpeech(ctx, id); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "deleted speech %s\n", id)
		return nil
	}
	list, err := a.Client.SpeechHistory(ctx, *limit)
	if err != nil {
		return err
	}
	tw := newTable(a.Out)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tVOICE\tSIZE\tCREATED\tTEXT")
	for _, s := range list {
		voice := "-"
		if s.Voice != nil {
			voice = s.Voice.Name
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Status, voice, console.Size(s.FileSize), s.CreatedAt, clip(s.Text, 40))
	}
	return tw.Flush()
}

func cmdVideos(ctx context.Context, a *App, args []string) error {
	sub, rest, err := subcommand(args, "list", "delete")
	if err != nil {
		return err
	}
	fs := a.flags("videos " + sub)
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 10, "entries per page")
	if err := parse(fs, rest); err != nil {
		return err
	}
	user, err := a.enter(ctx, session.ViewHistory)
	if err != nil {
		return err
	}
	if sub == "delete" {
		id, err := positional(fs, "video id")
		if err != nil {
			return err
		}
		deleted, err := a.Client.DeleteVideo(ctx, id, user.ID)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "deleted video %s\n", deleted)
		return nil
	}
	res, err := a.Client.VideoHistory(ctx, user.ID, *page, *limit)
	if err != nil {
		return err
	}
	tw := newTable(a.Out)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tAVATAR\tVOICE\tCREATED\tURL")
	for _, v := range res.Videos {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", v.ID, v.Status, orDash(v.AvatarName), orDash(v.VoiceName), v.CreatedAt, orDash(v.VideoURL))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.Out, "page %d of %d, %d videos\n", res.Pagination.Page, res.Pagination.TotalPages, res.Pagination.Total)
	return nil
}

func cmdUsers(ctx context.Context, a *App, args []string) error {
	sub, rest, err := subcommand(args, "list", "register", "update", "delete")
	if err != nil {
		return err
	}
	fs := a.flags("users " + sub)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "user password")
	role := fs.String("role", "", "VIDEO_GENERATOR, NEWS_GENERATOR, VOICE_GENERATOR or SCRIPT_WRITER")
	if err := parse(fs, rest); err != nil {
		return err
	}
	if _, err := a.enter(ctx, session.ViewAdminPanel); err != nil {
		return err
	}

	switch sub {
	case "list":
		list, err := a.Client.ListUsers(ctx)
		if err != nil {
			return err
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Email < list[j].Email })
		tw := newTable(a.Out)
		_, _ = fmt.Fprintln(tw, "ID\tEMAIL\tROLE\tCREATED")
		for _, u := range list {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.CurrentRole(), u.CreatedAt)
		}
		return tw.Flush()
	case "register":
		if err := a.Client.RegisterUser(ctx, *email, *password, *role); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "registered %s\n", *email)
		return nil
	}

	id, err := positional(fs, "user id")
	if err != nil {
		return err
	}
	if sub == "delete" {
		if err := a.Client.DeleteUser(ctx, id); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "deleted user %s\n", id)
		return nil
	}
	list, err := a.Client.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range list {
		if u.ID == id {
			mail := *email
			if mail == "" {
				mail = u.Email
			}
			if err := a.Client.UpdateUser(ctx, u, mail, *password, *role); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.Out, "updated user %s\n", id)
			return nil
		}
	}
	return fmt.Errorf("user %s not found", id)
}
