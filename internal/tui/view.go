package tui

import (
	"fmt"
	"strings"

	"github.com/aivideopro/aivideopro/internal/model"
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("AI Video Pro"))
	b.WriteString("\n")
	b.WriteString(HeadingStyle.Render("Edit Video With AI"))
	b.WriteString("\n")
	b.WriteString(InfoStyle.Render("Upload. Describe. Download. No editing skills needed."))
	b.WriteString("\n\n")

	if m.SignedIn {
		b.WriteString(fmt.Sprintf("%s  Credits: %s\n\n", m.Email, SuccessStyle.Render(fmt.Sprint(m.Credits))))
	} else {
		b.WriteString(InfoStyle.Render("Not signed in"))
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderField(fieldVideo, "1. Upload Video", m.Video, "Path to a local video or an https:// URL"))
	b.WriteString("\n")
	b.WriteString(m.renderField(fieldPrompt, "2. Describe Edit", m.Prompt, "Examples:\n- "+strings.Join(PromptExamples, "\n- ")))
	b.WriteString("\n")
	b.WriteString(InfoStyle.Render(fmt.Sprintf("Cost: %d credit    1-3 minutes", EditCost)))
	b.WriteString("\n\n")

	button := ButtonStyle
	if !m.CanSubmit() && !m.State.IsTerminal() {
		button = DisabledButtonStyle
	}
	b.WriteString(button.Render(m.ButtonLabel()))
	b.WriteString("\n\n")

	switch m.State {
	case model.JobStatusProcessing:
		b.WriteString("Processing your video... This takes 1-3 minutes\n")
		if m.JobID != "" {
			b.WriteString(InfoStyle.Render("Job ID: " + m.JobID))
			b.WriteString("\n")
		}
	case model.JobStatusCompleted:
		b.WriteString(SuccessStyle.Render("Your Video is Ready!"))
		b.WriteString("\n")
		b.WriteString("Download HD Video: " + m.ResultURL + "\n")
	}

	if m.Uploading || m.Notice != "" {
		b.WriteString(InfoStyle.Render(m.Notice))
		b.WriteString("\n")
	}
	if m.Err != nil {
		b.WriteString(ErrorStyle.Render("Error: " + m.Err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(InfoStyle.Render("tab switch field | enter start | esc or ctrl+c quit"))
	return b.String()
}

func (m Model) renderField(f field, title, value, placeholder string) string {
	style := BoxStyle
	if m.focus == f && m.State != model.JobStatusProcessing {
		style = FocusedBoxStyle
	}

	body := value
	if body == "" {
		body = InfoStyle.Render(placeholder)
	} else if m.focus == f {
		body += "█"
	}
	return style.Render(HeadingStyle.Render(title) + "\n" + body)
}
