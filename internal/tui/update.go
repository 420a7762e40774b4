package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aivideopro/aivideopro/internal/client"
	"github.com/aivideopro/aivideopro/internal/model"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case accountMsg:
		return m.handleAccount(msg)
	case uploadedMsg:
		return m.handleUploaded(msg)
	case submittedMsg:
		return m.handleSubmitted(msg)
	case jobUpdateMsg:
		return m.handleJobUpdate(msg)
	case pollDoneMsg:
		return m.handlePollDone(msg)
	}
	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.stopPolling()
		return m, tea.Quit
	case tea.KeyTab, tea.KeyShiftTab:
		if m.focus == fieldVideo {
			m.focus = fieldPrompt
		} else {
			m.focus = fieldVideo
		}
		return m, nil
	case tea.KeyEnter:
		return m.start()
	case tea.KeyBackspace:
		if m.State == model.JobStatusProcessing {
			return m, nil
		}
		m.editFocused(func(s string) string {
			r := []rune(s)
			if len(r) == 0 {
				return s
			}
			return string(r[:len(r)-1])
		})
		return m, nil
	case tea.KeySpace:
		m.appendText(" ")
		return m, nil
	case tea.KeyRunes:
		m.appendText(string(msg.Runes))
		return m, nil
	}
	return m, nil
}

func (m *Model) appendText(s string) {
	if m.State == model.JobStatusProcessing {
		return
	}
	m.editFocused(func(cur string) string { return cur + s })
}

func (m *Model) editFocused(fn func(string) string) {
	if m.focus == fieldVideo {
		m.Video = fn(m.Video)
	} else {
		m.Prompt = fn(m.Prompt)
	}
}

// start handles the start button. Terminal states reset to idle first, the
// way the page's "Try Again" does.
func (m Model) start() (tea.Model, tea.Cmd) {
	if m.State.IsTerminal() {
		m.State = model.JobStatusIdle
		m.JobID = ""
		m.Err = nil
		m.Notice = ""
		m.ResultURL = ""
		return m, nil
	}

	if !m.CanSubmit() {
		return m, nil
	}
	if !m.SignedIn {
		m.Notice = "Not signed in. Set AVP_API_KEY from the sign-in page."
		return m, fetchAccount(m.ctx, m.api)
	}
	if m.Credits < EditCost {
		m.Notice = NoCreditsMessage
		return m, nil
	}

	m.Notice = ""
	m.Err = nil
	video := strings.TrimSpace(m.Video)
	if !isRemoteURL(video) {
		m.Uploading = true
		m.Notice = "Uploading " + video + "..."
		return m, uploadVideo(m.ctx, m.api, video)
	}

	m.State = model.JobStatusProcessing
	return m, submitEdit(m.ctx, m.api, video, strings.TrimSpace(m.Prompt))
}

func (m Model) handleAccount(msg accountMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.SignedIn = false
		if client.IsStatus(msg.Err, 401) {
			m.Notice = "Sign in required: the API key was rejected."
		} else {
			m.Err = msg.Err
		}
		return m, nil
	}
	m.SignedIn = true
	m.Email = msg.Account.Email
	m.Credits = msg.Account.Credits
	if m.Notice != "" && strings.HasPrefix(m.Notice, "Not signed in") {
		m.Notice = ""
	}
	return m, nil
}

func (m Model) handleUploaded(msg uploadedMsg) (tea.Model, tea.Cmd) {
	m.Uploading = false
	if msg.Err != nil {
		m.Notice = ""
		m.Err = fmt.Errorf("upload failed: %w", msg.Err)
		return m, nil
	}
	m.Video = msg.VideoURL
	m.Notice = ""
	m.State = model.JobStatusProcessing
	return m, submitEdit(m.ctx, m.api, msg.VideoURL, strings.TrimSpace(m.Prompt))
}

func (m Model) handleSubmitted(msg submittedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.State = model.JobStatusIdle
		var apiErr *client.APIError
		if errors.As(msg.Err, &apiErr) && apiErr.StatusCode == 402 {
			m.Notice = NoCreditsMessage
			return m, fetchAccount(m.ctx, m.api)
		}
		m.Err = msg.Err
		return m, nil
	}

	m.JobID = msg.Response.JobID

	// Mock mode answers without creating a job; there is nothing to poll.
	if msg.Response.Status != model.JobStatusProcessing {
		m.State = model.JobStatusIdle
		m.Notice = msg.Response.Message
		return m, nil
	}

	m.Credits -= EditCost
	ctx, cancel := context.WithCancel(m.ctx)
	m.pollCancel = cancel
	updates := make(chan *model.JobResponse, 1)
	m.updates = updates
	return m, tea.Batch(
		pollJob(ctx, m.poller, m.JobID, updates),
		waitForUpdate(updates),
	)
}

// handleJobUpdate applies one poll snapshot and waits for the next, until
// the poller closes the channel.
func (m Model) handleJobUpdate(msg jobUpdateMsg) (tea.Model, tea.Cmd) {
	if msg.Job == nil || msg.Job.ID != m.JobID {
		return m, nil
	}
	if msg.Job.Status == model.JobStatusProcessing {
		m.Notice = ""
	}
	if m.updates == nil {
		return m, nil
	}
	return m, waitForUpdate(m.updates)
}

func (m Model) handlePollDone(msg pollDoneMsg) (tea.Model, tea.Cmd) {
	m.stopPolling()
	if msg.Err != nil {
		m.State = model.JobStatusFailed
		m.Err = msg.Err
		return m, fetchAccount(m.ctx, m.api)
	}

	m.State = msg.Job.Status
	switch msg.Job.Status {
	case model.JobStatusCompleted:
		m.ResultURL = msg.Job.ResultURL
	case model.JobStatusFailed:
		if msg.Job.Error != "" {
			m.Err = errors.New(msg.Job.Error)
		}
	}
	return m, fetchAccount(m.ctx, m.api)
}

func (m *Model) stopPolling() {
	if m.pollCancel != nil {
		m.pollCancel()
		m.pollCancel = nil
	}
	m.updates = nil
}
