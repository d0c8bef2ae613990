package gmail

// Credentials is the opaque credential blob stored in the vault for a
// Gmail-style token account.
type Credentials struct {
	// AccessToken is the bearer token for the message API.
	AccessToken string `json:"access_token"`

	// EmailAddress is the mailbox address the token is scoped to.
	EmailAddress string `json:"email_address"`
}

// listResponse is the response from GET /users/me/messages.
type listResponse struct {
	Messages           []messageRef `json:"messages"`
	NextPageToken      string       `json:"nextPageToken"`
	ResultSizeEstimate int          `json:"resultSizeEstimate"`
}

// messageRef is a message stub returned by the list endpoint.
type messageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// apiMessage is a message resource from GET /users/me/messages/{id}.
type apiMessage struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	LabelIDs     []string `json:"labelIds"`
	Snippet      string   `json:"snippet"`
	InternalDate string   `json:"internalDate"`
	Payload      *payload `json:"payload"`
}

// payload is the MIME tree of a message resource.
type payload struct {
	MimeType string    `json:"mimeType"`
	Filename string    `json:"filename"`
	Headers  []header  `json:"headers"`
	Body     *partBody `json:"body"`
	Parts    []payload `json:"parts"`
}

type header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type partBody struct {
	AttachmentID string `json:"attachmentId"`
	Size         int64  `json:"size"`
	Data         string `json:"data"`
}

// sendRequest is the body for POST /users/me/messages/send.
type sendRequest struct {
	Raw string `json:"raw"`
}

// modifyRequest is the body for POST /users/me/messages/{id}/modify.
type modifyRequest struct {
	AddLabelIDs    []string `json:"addLabelIds,omitempty"`
	RemoveLabelIDs []string `json:"removeLabelIds,omitempty"`
}

// profileResponse is the response from GET /users/me/profile.
type profileResponse struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int    `json:"messagesTotal"`
}
