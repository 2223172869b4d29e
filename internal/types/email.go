package types

// EmailAddress is a sender or recipient address with an optional display name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// SendInput carries pre-rendered email content to an EmailProvider. The
// worker renders subject and bodies from the reminder message before calling
// Send; providers never see templates.
type SendInput struct {
	To       string
	From     EmailAddress
	Subject  string
	BodyHTML string
	BodyText string

	// ReferenceID correlates the provider delivery with the originating
	// reminder message. Providers attach it as a tag or custom arg.
	ReferenceID string
}
