// Package tui is the terminal editor: sign in with an API key, pick a
// video, describe the edit, then watch the job until it finishes.
package tui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aivideopro/aivideopro/internal/client"
	"github.com/aivideopro/aivideopro/internal/model"
)

const (
	NoCreditsMessage = "No credits. Purchase more to continue."

	// EditCost is the price shown next to the prompt.
	EditCost = 1
)

// PromptExamples are shown while the prompt is empty.
var PromptExamples = []string{
	"Remove the coffee cup from the table",
	"Make the sky more dramatic and orange",
	"Cut all silences longer than 2 seconds",
	"Stabilize the shaky footage and zoom in 1.5x",
}

// API is the part of the HTTP client the editor needs.
type API interface {
	client.JobGetter
	Me(ctx context.Context) (*model.AccountResponse, error)
	SubmitEdit(ctx context.Context, videoURL, prompt string) (*model.EditResponse, error)
	UploadFile(ctx context.Context, path string) (string, error)
}

type field int

const (
	fieldVideo field = iota
	fieldPrompt
)

// Options seeds the editor.
type Options struct {
	VideoURL     string
	Prompt       string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Model is the editor state. State uses the job statuses, with idle before
// anything is submitted.
type Model struct {
	ctx    context.Context
	api    API
	poller *client.Poller

	State     model.JobStatus
	Video     string
	Prompt    string
	Credits   int
	Email     string
	SignedIn  bool
	JobID     string
	ResultURL string
	Notice    string
	Err       error
	Uploading bool

	focus      field
	pollCancel context.CancelFunc
	updates    <-chan *model.JobResponse
}

// NewModel creates the editor bound to ctx. Cancelling ctx stops any
// in-flight request or poll.
func NewModel(ctx context.Context, api API, opts Options) Model {
	poller := client.NewPoller(api)
	if opts.PollInterval > 0 {
		poller.Interval = opts.PollInterval
	}
	if opts.PollTimeout > 0 {
		poller.Timeout = opts.PollTimeout
	}

	m := Model{
		ctx:    ctx,
		api:    api,
		poller: poller,
		State:  model.JobStatusIdle,
		Video:  opts.VideoURL,
		Prompt: opts.Prompt,
	}
	if m.Video != "" {
		m.focus = fieldPrompt
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return fetchAccount(m.ctx, m.api)
}

// CanSubmit reports whether the start button is enabled.
func (m Model) CanSubmit() bool {
	return strings.TrimSpace(m.Video) != "" &&
		strings.TrimSpace(m.Prompt) != "" &&
		m.State != model.JobStatusProcessing &&
		!m.Uploading
}

// ButtonLabel is the start button text for the current state.
func (m Model) ButtonLabel() string {
	switch m.State {
	case model.JobStatusProcessing:
		return "Editing Video..."
	case model.JobStatusCompleted:
		return "Download Ready!"
	case model.JobStatusFailed:
		return "Try Again"
	default:
		return "Start Editing →"
	}
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
