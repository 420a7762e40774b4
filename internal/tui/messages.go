package tui

import "github.com/aivideopro/aivideopro/internal/model"

type accountMsg struct {
	Account *model.AccountResponse
	Err     error
}

type uploadedMsg struct {
	VideoURL string
	Err      error
}

type submittedMsg struct {
	Response *model.EditResponse
	Err      error
}

type jobUpdateMsg struct {
	Job *model.JobResponse
}

type pollDoneMsg struct {
	Job *model.JobResponse
	Err error
}
