package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aivideopro/aivideopro/internal/client"
	"github.com/aivideopro/aivideopro/internal/model"
)

func fetchAccount(ctx context.Context, api API) tea.Cmd {
	return func() tea.Msg {
		account, err := api.Me(ctx)
		return accountMsg{Account: account, Err: err}
	}
}

func uploadVideo(ctx context.Context, api API, path string) tea.Cmd {
	return func() tea.Msg {
		url, err := api.UploadFile(ctx, path)
		return uploadedMsg{VideoURL: url, Err: err}
	}
}

func submitEdit(ctx context.Context, api API, videoURL, prompt string) tea.Cmd {
	return func() tea.Msg {
		resp, err := api.SubmitEdit(ctx, videoURL, prompt)
		return submittedMsg{Response: resp, Err: err}
	}
}

// pollJob runs the poller to completion. Snapshots are forwarded on
// updates, which is closed when polling ends.
func pollJob(ctx context.Context, poller *client.Poller, jobID string, updates chan<- *model.JobResponse) tea.Cmd {
	return func() tea.Msg {
		defer close(updates)
		job, err := poller.Poll(ctx, jobID, func(j *model.JobResponse) {
			select {
			case updates <- j:
			default:
			}
		})
		return pollDoneMsg{Job: job, Err: err}
	}
}

func waitForUpdate(updates <-chan *model.JobResponse) tea.Cmd {
	return func() tea.Msg {
		job, ok := <-updates
		if !ok {
			return nil
		}
		return jobUpdateMsg{Job: job}
	}
}
